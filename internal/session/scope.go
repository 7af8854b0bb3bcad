package session

import (
	"errors"
	"io"
	"sync"
)

// Scope owns closers (usually subscriptions) for the lifetime of a view.
// Dispose closes everything tracked by the scope and its children.
type Scope struct {
	mu       sync.Mutex
	closers  []io.Closer
	children []*Scope
	disposed bool
}

func NewScope() *Scope {
	return &Scope{}
}

// Track registers c with the scope. When the scope is already disposed,
// c is closed immediately.
func (s *Scope) Track(c io.Closer) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return c.Close()
	}
	s.closers = append(s.closers, c)
	s.mu.Unlock()
	return nil
}

// Child returns a scope disposed together with s.
func (s *Scope) Child() *Scope {
	child := NewScope()
	s.mu.Lock()
	disposed := s.disposed
	if !disposed {
		s.children = append(s.children, child)
	}
	s.mu.Unlock()
	if disposed {
		child.Dispose()
	}
	return child
}

// Dispose closes children first, then tracked closers in reverse order.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	children, closers := s.children, s.closers
	s.children, s.closers = nil, nil
	s.mu.Unlock()

	var errList []error
	for _, c := range children {
		if err := c.Dispose(); err != nil {
			errList = append(errList, err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (s *Scope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
