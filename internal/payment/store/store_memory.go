// Package store persists payment transactions.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"simkyc/internal/payment/models"
	"simkyc/pkg/requestcontext"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   []models.Transaction
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Create(ctx context.Context, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := requestcontext.Now(ctx)
	t.ID = s.nextID
	t.CreatedAt, t.UpdatedAt = now, now
	s.rows = append(s.rows, *t)
	return nil
}

// ListLatest returns up to limit transactions, newest id first.
func (s *InMemoryStore) ListLatest(_ context.Context, limit int) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Transaction, 0, len(s.rows))
	for i := range s.rows {
		t := s.rows[i]
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SumByStatus(_ context.Context, status string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, t := range s.rows {
		if t.Status == status {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}
