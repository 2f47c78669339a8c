//go:build integration

package verification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	"simkyc/internal/kyc/ports"
	"simkyc/internal/kyc/store/servicerequest"
	"simkyc/internal/kyc/store/verification"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/platform/tx"
	"simkyc/pkg/requestcontext"
	"simkyc/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres      *containers.PostgresContainer
	requests      *servicerequest.PostgresStore
	verifications *verification.PostgresStore
	ctx           context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.requests = servicerequest.NewPostgres(s.postgres.Pool)
	s.verifications = verification.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC))
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "kyc_verifications", "service_requests"))
}

func (s *PostgresStoreSuite) request() *models.ServiceRequest {
	sr := &models.ServiceRequest{
		RequestType: models.RequestTypeKYCCompliance,
		MSISDN:      "71234567",
		Status:      "started",
		Metadata:    models.Metadata{Extra: map[string]any{"channel": "app"}},
	}
	s.Require().NoError(s.requests.Create(s.ctx, sr))
	return sr
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	sr := s.request()
	v := &models.Verification{
		ServiceRequestID: sr.ID,
		Provider:         "metamap",
		VerificationID:   "ver-1",
		Status:           models.StatusVerified,
		DocumentType:     models.DocumentOmang,
		Person:           models.PersonRecord{FullName: "Kabo Molefe", DateOfBirth: "1990-04-12"},
		DocumentPhotos:   []string{"https://cdn/a.jpg"},
		RawResponse:      payload.Payload{"id": "ver-1"},
	}
	s.Require().NoError(s.verifications.Create(s.ctx, v))

	got, err := s.verifications.FindByID(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal("Kabo Molefe", got.Person.FullName)
	s.Equal("1990-04-12", got.Person.DateOfBirth)
	s.Equal([]string{"https://cdn/a.jpg"}, got.DocumentPhotos)
	s.Equal("ver-1", got.RawResponse.String("id"))
	s.Empty(got.IdentityID, "NULL columns read back as empty")

	storedSR, err := s.requests.FindByID(s.ctx, sr.ID)
	s.Require().NoError(err)
	s.Equal("app", storedSR.Metadata.Extra["channel"])
}

func (s *PostgresStoreSuite) TestCorrelationLookups() {
	sr := s.request()
	old := &models.Verification{ServiceRequestID: sr.ID, SessionID: "shared", Status: models.StatusPending}
	s.Require().NoError(s.verifications.Create(s.ctx, old))
	newer := &models.Verification{ServiceRequestID: sr.ID, IdentityID: "shared", Status: models.StatusPending}
	s.Require().NoError(s.verifications.Create(s.ctx, newer))

	s.Run("latest by any key prefers the highest id", func() {
		got, err := s.verifications.FindLatestByAnyKey(s.ctx, "shared")
		s.Require().NoError(err)
		s.Equal(newer.ID, got.ID)
	})

	s.Run("by key filters on one column", func() {
		got, err := s.verifications.FindLatestByKey(s.ctx, ports.KeySessionID, "shared")
		s.Require().NoError(err)
		s.Equal(old.ID, got.ID)
	})

	s.Run("empty value is not found", func() {
		_, err := s.verifications.FindLatestByKey(s.ctx, ports.KeyVerificationID, "")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestListStalePending() {
	sr := s.request()
	stale := &models.Verification{ServiceRequestID: sr.ID, VerificationID: "ver-stale", Status: models.StatusPending}
	s.Require().NoError(s.verifications.Create(s.ctx, stale))
	noID := &models.Verification{ServiceRequestID: sr.ID, Status: models.StatusPending}
	s.Require().NoError(s.verifications.Create(s.ctx, noID))
	later := requestcontext.WithTime(context.Background(), time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC))
	fresh := &models.Verification{ServiceRequestID: sr.ID, VerificationID: "ver-fresh", Status: models.StatusPending}
	s.Require().NoError(s.verifications.Create(later, fresh))

	cutoff := time.Date(2026, 2, 17, 8, 30, 0, 0, time.UTC)
	got, err := s.verifications.ListStalePending(s.ctx, cutoff, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(stale.ID, got[0].ID)

	got, err = s.verifications.ListStalePending(s.ctx, cutoff, stale.ID, 10)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *PostgresStoreSuite) TestTransactionRollsBack() {
	sr := s.request()
	runner := tx.NewPoolRunner(s.postgres.Pool)

	err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
		sr.Status = "kyc_pending"
		if err := s.requests.Update(ctx, sr); err != nil {
			return err
		}
		if err := s.verifications.Create(ctx, &models.Verification{ServiceRequestID: sr.ID, Status: models.StatusPending}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Require().Error(err)

	got, err := s.requests.FindByID(s.ctx, sr.ID)
	s.Require().NoError(err)
	s.Equal("started", got.Status)
	_, err = s.verifications.FindLatestForRequest(s.ctx, sr.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRequestCounters() {
	s.request()
	done := s.request()
	done.Status = "completed"
	s.Require().NoError(s.requests.Update(s.ctx, done))

	total, err := s.requests.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, total)
	completed, err := s.requests.CountByStatus(s.ctx, "completed")
	s.Require().NoError(err)
	s.Equal(1, completed)

	types, err := s.requests.TypesByID(s.ctx, []int64{done.ID, 999})
	s.Require().NoError(err)
	s.Equal(map[int64]models.RequestType{done.ID: models.RequestTypeKYCCompliance}, types)
}
