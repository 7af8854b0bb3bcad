package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"trackly/internal/domain"
	"trackly/internal/events"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Sink receives events the dispatcher forwards.
type Sink interface {
	Name() string
	Match(evtType string) bool
	Deliver(ctx context.Context, evt domain.Event) error
}

// Dispatcher polls the event log and delivers new events to each sink in
// order. A failed delivery is retried from the same event on the next tick.
type Dispatcher struct {
	Log      events.Log
	Sinks    []Sink
	Interval time.Duration
	Logger   *slog.Logger

	mu      sync.Mutex
	cursors map[int]int64
}

func NewDispatcher(log events.Log, sinks []Sink, interval time.Duration, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Log: log, Sinks: sinks, Interval: interval, Logger: logger, cursors: map[int]int64{}}
}

// Run dispatches until ctx ends. Sinks start after the newest event
// present when they are first polled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.Sinks) == 0 {
		return nil
	}
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for i, sink := range d.Sinks {
		d.dispatch(ctx, i, sink)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, idx int, sink Sink) {
	cursor, ok := d.cursorFor(ctx, idx)
	if !ok {
		return
	}
	evts, err := d.Log.After(ctx, defaultBatch, cursor, events.Filter{})
	if err != nil {
		d.Logger.Warn("notify: fetch events failed", "sink", sink.Name(), "err", err)
		return
	}
	for _, evt := range evts {
		if !sink.Match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := sink.Deliver(ctx, evt); err != nil {
			d.Logger.Warn("notify: delivery failed", "sink", sink.Name(), "event", evt.ID, "err", err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur, true
	}
	cur, err := d.Log.LatestID(ctx)
	if err != nil {
		d.Logger.Warn("notify: init cursor failed", "err", err)
		return 0, false
	}
	d.cursors[idx] = cur
	return cur, true
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

// Cursor returns the last event id handled for sink idx.
func (d *Dispatcher) Cursor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursors[idx]
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(evts []string) eventFilter {
	set := make(map[string]struct{}, len(evts))
	for _, evt := range evts {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
