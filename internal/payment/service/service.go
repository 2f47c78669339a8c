// Package service records payments and reports revenue.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"simkyc/internal/audit"
	kycmodels "simkyc/internal/kyc/models"
	"simkyc/internal/msisdn"
	"simkyc/internal/payment/models"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/requestcontext"
)

// Store persists payment transactions.
type Store interface {
	Create(ctx context.Context, t *models.Transaction) error
	ListLatest(ctx context.Context, limit int) ([]*models.Transaction, error)
	SumByStatus(ctx context.Context, status string) (decimal.Decimal, error)
}

// RequestFinder confirms a referenced service request exists.
type RequestFinder interface {
	FindByID(ctx context.Context, id int64) (*kycmodels.ServiceRequest, error)
}

// Recorder writes audit entries.
type Recorder interface {
	Record(ctx context.Context, action audit.Action, serviceRequestID int64, payload map[string]any)
}

type Service struct {
	store    Store
	requests RequestFinder
	audit    Recorder
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAudit(r Recorder) Option {
	return func(s *Service) {
		s.audit = r
	}
}

func New(store Store, requests RequestFinder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("payment store is required")
	}
	if requests == nil {
		return nil, errors.New("service request finder is required")
	}
	s := &Service{store: store, requests: requests, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Record stores t after filling defaults. The client user agent is taken
// from the request context.
func (s *Service) Record(ctx context.Context, t models.Transaction) (*models.Transaction, error) {
	if t.Amount.IsNegative() {
		return nil, dErrors.New(dErrors.CodeValidation, "Amount must not be negative.")
	}
	if t.ServiceRequestID != nil {
		if _, err := s.requests.FindByID(ctx, *t.ServiceRequestID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "Service request not found.")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load service request")
		}
	}
	if t.MSISDN != "" {
		t.MSISDN = msisdn.Selected(t.MSISDN)
	}
	if t.Currency == "" {
		t.Currency = models.DefaultCurrency
	}
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	t.Amount = t.Amount.Round(2)
	if t.UserAgent == "" {
		t.UserAgent = requestcontext.UserAgent(ctx)
	}

	if err := s.store.Create(ctx, &t); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
	}

	var srID int64
	if t.ServiceRequestID != nil {
		srID = *t.ServiceRequestID
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.ActionPaymentRecorded, srID, map[string]any{
			"payment_id": t.ID,
			"amount":     t.Amount.StringFixed(2),
			"currency":   t.Currency,
			"status":     t.Status,
		})
	}
	s.logger.InfoContext(ctx, "payment recorded",
		"request_id", requestcontext.RequestID(ctx),
		"payment_id", t.ID,
		"service_type", t.ServiceType,
		"status", t.Status,
	)
	return &t, nil
}

// Latest lists the most recent payments.
func (s *Service) Latest(ctx context.Context, limit int) ([]*models.Transaction, error) {
	list, err := s.store.ListLatest(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payments")
	}
	return list, nil
}

// Revenue sums completed payments.
func (s *Service) Revenue(ctx context.Context) (decimal.Decimal, error) {
	total, err := s.store.SumByStatus(ctx, models.StatusCompleted)
	if err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum revenue")
	}
	return total, nil
}
