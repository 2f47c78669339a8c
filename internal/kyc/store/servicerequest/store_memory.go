package servicerequest

import (
	"context"
	"sort"
	"sync"

	"simkyc/internal/kyc/models"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/requestcontext"
)

// InMemoryStore keeps service requests in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	requests map[int64]*models.ServiceRequest
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{requests: make(map[int64]*models.ServiceRequest)}
}

func (s *InMemoryStore) Create(ctx context.Context, req *models.ServiceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := requestcontext.Now(ctx)
	req.ID = s.nextID
	req.CreatedAt = now
	req.UpdatedAt = now
	s.requests[req.ID] = clone(req)
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, req *models.ServiceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; !ok {
		return sentinel.ErrNotFound
	}
	req.UpdatedAt = requestcontext.Now(ctx)
	s.requests[req.ID] = clone(req)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*models.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(req), nil
}

func (s *InMemoryStore) FindLatestByMSISDN(_ context.Context, msisdn string) (*models.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.ServiceRequest
	for _, req := range s.requests {
		if req.MSISDN != msisdn {
			continue
		}
		if latest == nil || req.ID > latest.ID {
			latest = req
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(latest), nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]*models.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.ServiceRequest, 0, len(s.requests))
	for _, req := range s.requests {
		all = append(all, clone(req))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests), nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context, status string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, req := range s.requests {
		if req.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) TypesByID(_ context.Context, ids []int64) (map[int64]models.RequestType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]models.RequestType, len(ids))
	for _, id := range ids {
		if req, ok := s.requests[id]; ok {
			out[id] = req.RequestType
		}
	}
	return out, nil
}

func clone(req *models.ServiceRequest) *models.ServiceRequest {
	c := *req
	if req.Metadata.Extra != nil {
		c.Metadata.Extra = make(map[string]any, len(req.Metadata.Extra))
		for k, v := range req.Metadata.Extra {
			c.Metadata.Extra[k] = v
		}
	}
	return &c
}
