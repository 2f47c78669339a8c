//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks EventStore EventPublisher

// Package webhook ingests MetaMap webhook deliveries: it checks the
// signature, records every delivery, and reconciles the payload against the
// stored KYC records.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"simkyc/internal/kyc/extract"
	"simkyc/internal/kyc/metrics"
	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	"simkyc/internal/kyc/ports"
	"simkyc/internal/kyc/resolver"
	"simkyc/internal/kyc/status"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/platform/tx"
	"simkyc/pkg/requestcontext"
)

const eventVerificationCompleted = "verification_completed"

// EventStore records webhook deliveries.
type EventStore interface {
	Save(ctx context.Context, ev *models.WebhookEvent) error
}

// EventPublisher forwards saved deliveries to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev *models.WebhookEvent) error
}

// Correlator finds the records a payload belongs to.
type Correlator interface {
	Resolve(ctx context.Context, p payload.Payload) (resolver.Resolution, error)
	DocumentType(p payload.Payload) models.DocumentType
}

// Outcome classifies how a delivery was handled.
type Outcome string

const (
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeInvalidPayload   Outcome = "invalid_payload"
	OutcomeUnmatched        Outcome = "unmatched"
	OutcomeProcessed        Outcome = "processed"
)

// Delivery is one inbound webhook request.
type Delivery struct {
	Body      []byte
	Signature string
}

// Result reports what Process did with a delivery.
type Result struct {
	Outcome              Outcome
	EventName            string
	EventSaved           bool
	VerificationRecordID int64
	Status               models.Status
}

// Service processes webhook deliveries.
type Service struct {
	secret        string
	events        EventStore
	publisher     EventPublisher
	fetcher       ports.VerificationFetcher
	correlator    Correlator
	requests      ports.ServiceRequestStore
	verifications ports.VerificationStore
	tx            tx.Runner
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSecret enables signature checks.
func WithSecret(secret string) Option {
	return func(s *Service) {
		s.secret = secret
	}
}

// WithPublisher streams every saved delivery.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func New(
	events EventStore,
	fetcher ports.VerificationFetcher,
	correlator Correlator,
	requests ports.ServiceRequestStore,
	verifications ports.VerificationStore,
	opts ...Option,
) (*Service, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if fetcher == nil {
		return nil, errors.New("verification fetcher is required")
	}
	if correlator == nil {
		return nil, errors.New("correlator is required")
	}
	if requests == nil || verifications == nil {
		return nil, errors.New("kyc stores are required")
	}
	s := &Service{
		events:        events,
		fetcher:       fetcher,
		correlator:    correlator,
		requests:      requests,
		verifications: verifications,
		tx:            tx.NoopRunner{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Process handles one delivery. Errors are returned only for failed
// reconciliation writes; rejected deliveries are reported through Result.
func (s *Service) Process(ctx context.Context, d Delivery) (*Result, error) {
	ctx, span := otel.Tracer("simkyc/metamap/webhook").Start(ctx, "webhook.Process", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	if s.secret != "" && !VerifySignature(s.secret, d.Body, d.Signature) {
		valid := false
		saved := s.record(ctx, NewEvent(d.Body, nil, d.Signature, &valid))
		s.logger.WarnContext(ctx, "webhook signature rejected",
			"request_id", requestcontext.RequestID(ctx),
		)
		s.metrics.IncrementWebhook("", string(OutcomeInvalidSignature))
		return &Result{Outcome: OutcomeInvalidSignature, EventSaved: saved}, nil
	}

	var signatureValid *bool
	if s.secret != "" {
		valid := true
		signatureValid = &valid
	}

	p, parseErr := payload.Parse(d.Body)
	saved := s.record(ctx, NewEvent(d.Body, p, d.Signature, signatureValid))
	if parseErr != nil {
		s.metrics.IncrementWebhook("", string(OutcomeInvalidPayload))
		return &Result{Outcome: OutcomeInvalidPayload, EventSaved: saved}, nil
	}

	eventName := p.String("eventName")
	span.SetAttributes(attribute.String("webhook.event_name", eventName))
	result := &Result{EventName: eventName, EventSaved: saved}

	p = s.enrich(ctx, p)
	mapped := status.MapProvider(firstStatus(p))

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.correlator.Resolve(ctx, p)
		if err != nil {
			return err
		}
		if !res.Linked() {
			result.Outcome = OutcomeUnmatched
			return nil
		}
		if err := s.apply(ctx, res, p, mapped); err != nil {
			return err
		}
		result.Outcome = OutcomeProcessed
		result.VerificationRecordID = res.Verification.ID
		result.Status = res.Verification.Status
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrementWebhook(eventName, "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to process webhook")
	}

	s.metrics.IncrementWebhook(eventName, string(result.Outcome))
	s.logger.InfoContext(ctx, "webhook processed",
		"request_id", requestcontext.RequestID(ctx),
		"event_name", eventName,
		"outcome", result.Outcome,
		"kyc_verification_id", result.VerificationRecordID,
	)
	return result, nil
}

// enrich resolves the provider verification id and, for completed
// verifications, attaches the full document fetched from the provider.
func (s *Service) enrich(ctx context.Context, p payload.Payload) payload.Payload {
	p = p.Clone()
	if p.String("verificationId") == "" {
		if id := VerificationIDFromResource(p.String("resource")); id != "" {
			p["verificationId"] = id
		}
	}

	verificationID := p.String("verificationId")
	if strings.ToLower(p.String("eventName")) != eventVerificationCompleted || verificationID == "" {
		return p
	}
	doc := s.fetcher.GetVerification(ctx, verificationID)
	if doc == nil {
		return p
	}
	p["full_verification"] = map[string]any(doc)
	if id := doc.String("id"); id != "" {
		p["verificationId"] = id
	}
	if id := doc.Map("identity").String("id"); id != "" {
		p["identityId"] = id
	}
	return p
}

func (s *Service) apply(ctx context.Context, res resolver.Resolution, p payload.Payload, mapped models.Status) error {
	v := res.Verification
	if id := p.String("verificationId"); id != "" {
		v.VerificationID = id
	}
	if id := p.String("identityId"); id != "" {
		v.IdentityID = id
	}
	v.Status = mapped
	if doc := s.correlator.DocumentType(p); doc != "" {
		v.DocumentType = doc
	}
	v.Person.Overlay(extract.Person(p))
	if mapped == models.StatusRejected {
		v.FailureReason = p.Map("details").String("reason")
		if v.FailureReason == "" {
			v.FailureReason = models.DefaultFailureReason
		}
	}
	media := extract.Media(p)
	if media.SelfieURL != "" {
		v.SelfieURL = media.SelfieURL
	}
	if len(media.DocumentPhotos) > 0 {
		v.DocumentPhotos = media.DocumentPhotos
	}
	v.RawResponse = p

	if err := s.verifications.Update(ctx, v); err != nil {
		return err
	}

	if sr := res.ServiceRequest; sr != nil {
		sr.ApplyVerificationOutcome(mapped)
		if err := s.requests.Update(ctx, sr); err != nil {
			return err
		}
	}
	return nil
}

// record saves and publishes the delivery. Both are best-effort.
func (s *Service) record(ctx context.Context, ev *models.WebhookEvent) bool {
	if err := s.events.Save(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "failed to save webhook event",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return false
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "failed to publish webhook event",
				"request_id", requestcontext.RequestID(ctx),
				"event_id", ev.ID,
				"error", err,
			)
		}
	}
	return true
}

// firstStatus returns the first provider status found in p.
func firstStatus(p payload.Payload) string {
	if s := p.FirstString("status", "identityStatus"); s != "" {
		return s
	}
	if s := p.Dig("full_verification", "identity").String("status"); s != "" {
		return s
	}
	return p.Map("step").String("status")
}
