// Package functions exposes privileged server-side operations by name.
package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trackly/internal/errs"
	"trackly/internal/session"
)

var ErrUnknownFunction = errors.New("unknown function")

// Func handles one invocation. payload is the raw JSON argument.
type Func func(ctx context.Context, sess session.Session, payload json.RawMessage) (any, error)

type Gateway struct {
	Logger *slog.Logger

	mu    sync.RWMutex
	funcs map[string]Func
}

func NewGateway(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{Logger: logger, funcs: map[string]Func{}}
}

func (g *Gateway) Register(name string, fn Func) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.funcs[name] = fn
}

func (g *Gateway) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.funcs))
	for n := range g.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (g *Gateway) Invoke(ctx context.Context, sess session.Session, name string, payload json.RawMessage) (any, error) {
	g.mu.RLock()
	fn, ok := g.funcs[name]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	start := time.Now()
	out, err := fn(ctx, sess, payload)
	if err != nil {
		g.Logger.Warn("function failed", "function", name, "actor", sess.ActorID(), "err", err)
		return nil, err
	}
	g.Logger.Info("function invoked", "function", name, "actor", sess.ActorID(), "duration", time.Since(start))
	return out, nil
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errs.Invalid("payload", "invalid JSON: %v", err)
	}
	return nil
}
