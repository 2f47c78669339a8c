// Package store persists subscribers.
package store

import (
	"context"
	"sync"

	"simkyc/internal/subscriber/models"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/requestcontext"
)

// InMemoryStore keys subscribers by stored msisdn.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byMSI  map[string]*models.Subscriber
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{byMSI: make(map[string]*models.Subscriber)}
}

// FindAny returns the first subscriber stored under any of forms.
func (s *InMemoryStore) FindAny(_ context.Context, forms []string) (*models.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range forms {
		if sub, ok := s.byMSI[f]; ok {
			out := *sub
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byMSI), nil
}

// UpsertWhitelisted marks each msisdn whitelisted, creating missing rows.
// It returns the numbers that were newly inserted and those that existed.
func (s *InMemoryStore) UpsertWhitelisted(ctx context.Context, msisdns []string) ([]string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	var inserted, updated []string
	for _, m := range msisdns {
		if sub, ok := s.byMSI[m]; ok {
			sub.IsWhitelisted = true
			sub.UpdatedAt = now
			updated = append(updated, m)
			continue
		}
		s.nextID++
		s.byMSI[m] = &models.Subscriber{
			ID:            s.nextID,
			MSISDN:        m,
			Status:        "active",
			IsWhitelisted: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		inserted = append(inserted, m)
	}
	return inserted, updated, nil
}

// Save inserts or replaces sub. Used for seeding.
func (s *InMemoryStore) Save(ctx context.Context, sub *models.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byMSI[sub.MSISDN]; ok {
		sub.ID = existing.ID
	} else {
		s.nextID++
		sub.ID = s.nextID
	}
	now := requestcontext.Now(ctx)
	sub.CreatedAt, sub.UpdatedAt = now, now
	out := *sub
	s.byMSI[sub.MSISDN] = &out
	return nil
}
