package store

import (
	"context"
	"sync"

	"simkyc/internal/kyc/models"
	"simkyc/pkg/requestcontext"
)

// InMemoryStore appends webhook events to a slice.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []models.WebhookEvent
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(ctx context.Context, ev *models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = int64(len(s.events) + 1)
	ev.CreatedAt = requestcontext.Now(ctx)
	s.events = append(s.events, *ev)
	return nil
}

// All returns the stored events oldest first.
func (s *InMemoryStore) All(_ context.Context) ([]models.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.WebhookEvent(nil), s.events...), nil
}
