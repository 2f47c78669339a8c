// Package store persists step audit events.
package store

import (
	"context"
	"sync"

	"simkyc/internal/audit"
)

// InMemoryStore keeps audit events in insertion order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}

func (s *InMemoryStore) ListByRequest(_ context.Context, serviceRequestID int64) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, ev := range s.events {
		if ev.ServiceRequestID != nil && *ev.ServiceRequestID == serviceRequestID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// All returns every event oldest first.
func (s *InMemoryStore) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...)
}
