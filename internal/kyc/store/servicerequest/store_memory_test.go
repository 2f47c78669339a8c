package servicerequest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"simkyc/internal/kyc/models"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/requestcontext"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC))
}

func (s *InMemoryStoreSuite) create(reqType models.RequestType, msisdn, status string) *models.ServiceRequest {
	req := &models.ServiceRequest{RequestType: reqType, MSISDN: msisdn, Status: status}
	s.Require().NoError(s.store.Create(s.ctx, req))
	return req
}

func (s *InMemoryStoreSuite) TestCreateAssignsSequentialIDs() {
	first := s.create(models.RequestTypeKYCCompliance, "", "started")
	second := s.create(models.RequestTypeESIMPurchase, "", "started")
	s.Equal(int64(1), first.ID)
	s.Equal(int64(2), second.ID)
	s.False(first.CreatedAt.IsZero())
}

func (s *InMemoryStoreSuite) TestUpdate() {
	s.Run("persists changes and bumps updated_at", func() {
		req := s.create(models.RequestTypeKYCCompliance, "", "started")
		later := requestcontext.WithTime(s.ctx, time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC))
		req.Status = "terms_accepted"
		s.Require().NoError(s.store.Update(later, req))

		got, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal("terms_accepted", got.Status)
		s.True(got.UpdatedAt.After(got.CreatedAt))
	})

	s.Run("unknown id is not found", func() {
		err := s.store.Update(s.ctx, &models.ServiceRequest{ID: 999})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestReturnedRecordsAreCopies() {
	req := s.create(models.RequestTypeKYCCompliance, "", "started")
	got, err := s.store.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	got.Status = "mutated"

	again, err := s.store.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal("started", again.Status)
}

func (s *InMemoryStoreSuite) TestFindLatestByMSISDN() {
	s.create(models.RequestTypeSIMSwap, "71234567", "started")
	latest := s.create(models.RequestTypeKYCCompliance, "71234567", "kyc_pending")
	s.create(models.RequestTypeKYCCompliance, "72000000", "started")

	got, err := s.store.FindLatestByMSISDN(s.ctx, "71234567")
	s.Require().NoError(err)
	s.Equal(latest.ID, got.ID)

	_, err = s.store.FindLatestByMSISDN(s.ctx, "70000000")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestAggregates() {
	s.create(models.RequestTypeKYCCompliance, "", "completed")
	s.create(models.RequestTypeESIMPurchase, "", "completed")
	third := s.create(models.RequestTypeSIMSwap, "", "started")

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.store.CountByStatus(s.ctx, "completed")
	s.Require().NoError(err)
	s.Equal(2, n)

	recent, err := s.store.ListRecent(s.ctx, 2)
	s.Require().NoError(err)
	s.Len(recent, 2)
	s.Equal(third.ID, recent[0].ID)

	types, err := s.store.TypesByID(s.ctx, []int64{third.ID, 404})
	s.Require().NoError(err)
	s.Equal(map[int64]models.RequestType{third.ID: models.RequestTypeSIMSwap}, types)
}
