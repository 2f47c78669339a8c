// Package refresh polls the identity provider for verifications still
// pending and applies a conclusive result to the stored records.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"simkyc/internal/kyc/metrics"
	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/ports"
	"simkyc/internal/kyc/status"
	"simkyc/pkg/platform/sentinel"
	txcontext "simkyc/pkg/platform/tx"
	"simkyc/pkg/requestcontext"
)

// Outcome labels reported to metrics.
const (
	OutcomeSkipped     = "skipped"
	OutcomeUnavailable = "unavailable"
	OutcomeUnchanged   = "unchanged"
	OutcomeUpdated     = "updated"
	OutcomeFailed      = "failed"
)

// Refresher applies the on-demand poll protocol.
type Refresher struct {
	requests      ports.ServiceRequestStore
	verifications ports.VerificationStore
	fetcher       ports.VerificationFetcher
	tx            txcontext.Runner
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Refresher)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Refresher) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Refresher) {
		r.metrics = m
	}
}

// WithTxRunner makes the verification and request writes one transaction.
func WithTxRunner(runner txcontext.Runner) Option {
	return func(r *Refresher) {
		r.tx = runner
	}
}

// New constructs a Refresher.
func New(requests ports.ServiceRequestStore, verifications ports.VerificationStore, fetcher ports.VerificationFetcher, opts ...Option) (*Refresher, error) {
	if requests == nil || verifications == nil {
		return nil, fmt.Errorf("record stores are required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("verification fetcher is required")
	}
	r := &Refresher{
		requests:      requests,
		verifications: verifications,
		fetcher:       fetcher,
		tx:            txcontext.NoopRunner{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RefreshIfNeeded polls the provider when v is pending and carries a provider
// verification id. Poll failures leave v untouched; write failures propagate.
// sr may be nil, in which case the owning request is looked up.
func (r *Refresher) RefreshIfNeeded(ctx context.Context, v *models.Verification, sr *models.ServiceRequest) (*models.Verification, error) {
	if v == nil || v.Status != models.StatusPending || v.VerificationID == "" {
		r.metrics.IncrementRefresh(OutcomeSkipped)
		return v, nil
	}

	ctx, span := otel.Tracer("simkyc/kyc/refresh").Start(ctx, "refresh.RefreshIfNeeded")
	defer span.End()
	span.SetAttributes(attribute.Int64("kyc.verification.id", v.ID))

	doc := r.fetcher.GetVerification(ctx, v.VerificationID)
	if doc == nil {
		r.metrics.IncrementRefresh(OutcomeUnavailable)
		return v, nil
	}

	mapped := status.MapProvider(doc.Map("identity").String("status"))
	span.SetAttributes(attribute.String("kyc.status", string(mapped)))
	if mapped == models.StatusPending {
		r.metrics.IncrementRefresh(OutcomeUnchanged)
		return v, nil
	}

	updated := *v
	updated.Status = mapped
	if identityID := doc.Map("identity").String("id"); identityID != "" {
		updated.IdentityID = identityID
	}
	updated.RawResponse = doc
	if mapped == models.StatusRejected && updated.FailureReason == "" {
		updated.FailureReason = models.DefaultFailureReason
	}

	// The caller's sr only changes once the transaction has committed.
	var advanced *models.ServiceRequest
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.verifications.Update(ctx, &updated); err != nil {
			return fmt.Errorf("update verification: %w", err)
		}
		owner := sr
		if owner == nil {
			found, err := r.requests.FindByID(ctx, v.ServiceRequestID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return fmt.Errorf("find service request: %w", err)
			}
			owner = found
		}
		if owner == nil {
			return nil
		}
		next := *owner
		if mapped == models.StatusVerified {
			next.Status = models.RequestStatusKYCVerified
			next.CurrentStep = models.StepComplete
		} else {
			next.Status = models.RequestStatusKYCRejected
			next.CurrentStep = models.StepVerification
		}
		if err := r.requests.Update(ctx, &next); err != nil {
			return fmt.Errorf("update service request: %w", err)
		}
		advanced = &next
		return nil
	})
	if err != nil {
		span.RecordError(err)
		r.metrics.IncrementRefresh(OutcomeFailed)
		return nil, err
	}
	if sr != nil && advanced != nil {
		*sr = *advanced
	}

	r.metrics.IncrementRefresh(OutcomeUpdated)
	r.logger.InfoContext(ctx, "verification refreshed from provider",
		"request_id", requestcontext.RequestID(ctx),
		"kyc_verification_id", updated.ID,
		"status", updated.Status,
	)
	return &updated, nil
}
