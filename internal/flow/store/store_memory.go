// Package store persists registration profiles.
package store

import (
	"context"
	"sync"

	"simkyc/internal/flow/models"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/requestcontext"
)

// InMemoryStore keys profiles by service request.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	profiles map[int64]models.RegistrationProfile
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[int64]models.RegistrationProfile)}
}

// Upsert creates or replaces the profile for p.ServiceRequestID.
func (s *InMemoryStore) Upsert(ctx context.Context, p *models.RegistrationProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	if existing, ok := s.profiles[p.ServiceRequestID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		p.ID = s.nextID
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.profiles[p.ServiceRequestID] = *p
	return nil
}

func (s *InMemoryStore) FindByRequest(_ context.Context, serviceRequestID int64) (*models.RegistrationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[serviceRequestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}
