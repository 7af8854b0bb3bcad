package docstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Subscription delivers snapshots of a query on C, starting with the
// current result set. Notifications that arrive while a snapshot is being
// delivered collapse into one re-query. C is closed after Close or when
// the subscribing context ends.
type Subscription struct {
	C <-chan Snapshot

	poke   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops delivery and waits for the subscription goroutine to exit.
// It is safe to call more than once.
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *Subscription) wake() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

type hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: map[string]map[*Subscription]struct{}{}}
}

func (h *hub) add(collection string, s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[collection]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[collection] = set
	}
	set[s] = struct{}{}
}

func (h *hub) remove(collection string, s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[collection], s)
	if len(h.subs[collection]) == 0 {
		delete(h.subs, collection)
	}
}

func (h *hub) notify(collections ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := map[string]bool{}
	for _, c := range collections {
		if seen[c] {
			continue
		}
		seen[c] = true
		for s := range h.subs[c] {
			s.wake()
		}
	}
}

func (h *hub) count(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

func (s *SQLStore) subscribe(parent context.Context, q Query) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	out := make(chan Snapshot)
	sub := &Subscription{
		C:      out,
		poke:   make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.hub.add(q.Collection, sub)
	go s.run(ctx, q, sub, out)
	return sub
}

func (s *SQLStore) run(ctx context.Context, q Query, sub *Subscription, out chan<- Snapshot) {
	defer close(sub.done)
	defer close(out)
	defer s.hub.remove(q.Collection, sub)

	var last string
	first := true
	for {
		docs, err := s.Query(ctx, q)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.Logger.Warn("subscription query failed", "collection", q.Collection, "err", err)
		}
		sig := signature(docs)
		if first || err != nil || sig != last {
			select {
			case out <- Snapshot{Docs: docs, Err: err}:
			case <-ctx.Done():
				return
			}
			first = false
			if err == nil {
				last = sig
			}
		}
		select {
		case <-sub.poke:
		case <-ctx.Done():
			return
		}
	}
}

// signature identifies a result set by ids and contents.
func signature(docs []Document) string {
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.Ref.ID)
		b.WriteByte('=')
		raw, _ := json.Marshal(d.Data)
		b.Write(raw)
		b.WriteByte(';')
	}
	return b.String()
}
