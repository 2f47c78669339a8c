// Package service assembles the read-only admin reports.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"simkyc/internal/admin/models"
	kycmodels "simkyc/internal/kyc/models"
	paymentmodels "simkyc/internal/payment/models"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/requestcontext"
)

const (
	recentRequestLimit = 10
	paymentListLimit   = 200
)

// RequestReader is the service request view the reports need.
type RequestReader interface {
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	ListRecent(ctx context.Context, limit int) ([]*kycmodels.ServiceRequest, error)
	TypesByID(ctx context.Context, ids []int64) (map[int64]kycmodels.RequestType, error)
}

// VerificationReader is the verification view the reports need.
type VerificationReader interface {
	ListAll(ctx context.Context) ([]*kycmodels.Verification, error)
	CountByStatus(ctx context.Context, status kycmodels.Status) (int, error)
}

// PaymentReader reports revenue and recent payments.
type PaymentReader interface {
	Revenue(ctx context.Context) (decimal.Decimal, error)
	Latest(ctx context.Context, limit int) ([]*paymentmodels.Transaction, error)
}

type Service struct {
	requests      RequestReader
	verifications VerificationReader
	payments      PaymentReader
	logger        *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(requests RequestReader, verifications VerificationReader, payments PaymentReader, opts ...Option) (*Service, error) {
	if requests == nil || verifications == nil {
		return nil, errors.New("kyc stores are required")
	}
	if payments == nil {
		return nil, errors.New("payment reader is required")
	}
	s := &Service{requests: requests, verifications: verifications, payments: payments, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dashboard loads the counters and projects every verification. The
// independent reads run concurrently.
func (s *Service) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	var (
		d             models.Dashboard
		verifications []*kycmodels.Verification
		recent        []*kycmodels.ServiceRequest
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Summary.TotalRequests, err = s.requests.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Summary.CompletedRequests, err = s.requests.CountByStatus(gctx, "completed")
		return err
	})
	g.Go(func() (err error) {
		d.Summary.PendingKYC, err = s.verifications.CountByStatus(gctx, kycmodels.StatusPending)
		return err
	})
	g.Go(func() (err error) {
		d.Summary.TotalRevenue, err = s.payments.Revenue(gctx)
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.requests.ListRecent(gctx, recentRequestLimit)
		return err
	})
	g.Go(func() (err error) {
		verifications, err = s.verifications.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dashboard")
	}

	ids := make([]int64, 0, len(verifications))
	seen := make(map[int64]struct{}, len(verifications))
	for _, v := range verifications {
		if _, ok := seen[v.ServiceRequestID]; ok || v.ServiceRequestID == 0 {
			continue
		}
		seen[v.ServiceRequestID] = struct{}{}
		ids = append(ids, v.ServiceRequestID)
	}
	types, err := s.requests.TypesByID(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request types")
	}

	d.Records = make([]models.KYCRecord, 0, len(verifications))
	for _, v := range verifications {
		d.Records = append(d.Records, project(v, types))
	}
	d.Stats = tally(d.Records, startOfDay(requestcontext.Now(ctx)))

	d.RecentRequests = make([]models.RecentRequest, 0, len(recent))
	for _, sr := range recent {
		d.RecentRequests = append(d.RecentRequests, models.RecentRequest{
			ID:          sr.ID,
			RequestType: string(sr.RequestType),
			MSISDN:      optional(sr.MSISDN),
			Status:      sr.Status,
			CurrentStep: sr.CurrentStep,
			CreatedAt:   sr.CreatedAt,
		})
	}

	s.logger.DebugContext(ctx, "dashboard assembled",
		"request_id", requestcontext.RequestID(ctx),
		"records", len(d.Records),
	)
	return &d, nil
}

// Payments lists the latest payments.
func (s *Service) Payments(ctx context.Context) ([]*paymentmodels.Transaction, error) {
	return s.payments.Latest(ctx, paymentListLimit)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
