package verification

import (
	"context"
	"sort"
	"sync"
	"time"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/ports"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/requestcontext"
)

// InMemoryStore keeps verifications in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*models.Verification
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{items: make(map[int64]*models.Verification)}
}

func (s *InMemoryStore) Create(ctx context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := requestcontext.Now(ctx)
	v.ID = s.nextID
	v.CreatedAt = now
	v.UpdatedAt = now
	s.items[v.ID] = clone(v)
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[v.ID]; !ok {
		return sentinel.ErrNotFound
	}
	v.UpdatedAt = requestcontext.Now(ctx)
	s.items[v.ID] = clone(v)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(v), nil
}

func (s *InMemoryStore) FindLatestByKey(_ context.Context, key ports.CorrelationKey, value string) (*models.Verification, error) {
	if value == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.latest(func(v *models.Verification) bool { return keyValue(v, key) == value })
}

func (s *InMemoryStore) FindLatestByAnyKey(_ context.Context, value string) (*models.Verification, error) {
	if value == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.latest(func(v *models.Verification) bool {
		return v.VerificationID == value || v.IdentityID == value || v.SessionID == value
	})
}

func (s *InMemoryStore) FindLatestForRequest(_ context.Context, serviceRequestID int64) (*models.Verification, error) {
	return s.latest(func(v *models.Verification) bool { return v.ServiceRequestID == serviceRequestID })
}

func (s *InMemoryStore) ListForRequest(_ context.Context, serviceRequestID int64) ([]*models.Verification, error) {
	return s.list(func(v *models.Verification) bool { return v.ServiceRequestID == serviceRequestID }), nil
}

func (s *InMemoryStore) ListStalePending(_ context.Context, updatedBefore time.Time, afterID int64, limit int) ([]*models.Verification, error) {
	out := s.list(func(v *models.Verification) bool {
		return v.ID > afterID && v.Status == models.StatusPending && v.VerificationID != "" && v.UpdatedAt.Before(updatedBefore)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.Verification, error) {
	return s.list(func(*models.Verification) bool { return true }), nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context, status models.Status) (int, error) {
	return len(s.list(func(v *models.Verification) bool { return v.Status == status })), nil
}

func (s *InMemoryStore) latest(match func(*models.Verification) bool) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Verification
	for _, v := range s.items {
		if match(v) && (found == nil || v.ID > found.ID) {
			found = v
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(found), nil
}

// list returns matches newest first.
func (s *InMemoryStore) list(match func(*models.Verification) bool) []*models.Verification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Verification
	for _, v := range s.items {
		if match(v) {
			out = append(out, clone(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func keyValue(v *models.Verification, key ports.CorrelationKey) string {
	switch key {
	case ports.KeyVerificationID:
		return v.VerificationID
	case ports.KeyIdentityID:
		return v.IdentityID
	case ports.KeySessionID:
		return v.SessionID
	}
	return ""
}

func clone(v *models.Verification) *models.Verification {
	c := *v
	if v.DocumentPhotos != nil {
		c.DocumentPhotos = append([]string(nil), v.DocumentPhotos...)
	}
	if v.RawResponse != nil {
		c.RawResponse = v.RawResponse.Clone()
	}
	return &c
}
