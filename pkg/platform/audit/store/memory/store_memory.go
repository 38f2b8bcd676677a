// Package memory keeps the most recent audit events in process memory.
package memory

import (
	"context"
	"strings"
	"sync"

	audit "banguard/pkg/platform/audit"
)

const defaultCapacity = 10000

// InMemoryStore is a bounded, oldest-first-evicting event log.
type InMemoryStore struct {
	mu       sync.RWMutex
	capacity int
	events   []audit.Event
}

type Option func(*InMemoryStore)

// WithCapacity bounds how many events are kept. Non-positive values keep the
// default.
func WithCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records event, dropping the oldest entry once the store is full.
func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == s.capacity {
		copy(s.events, s.events[1:])
		s.events = s.events[:len(s.events)-1]
	}
	s.events = append(s.events, event)
	return nil
}

// ListBySubject returns the events about a player, oldest first. Player
// names compare case-insensitively.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if strings.EqualFold(e.Subject, subject) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every retained event, oldest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...), nil
}
