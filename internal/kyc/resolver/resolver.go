// Package resolver matches an inbound provider payload to the verification and
// service request it belongs to.
//
// Webhook deliveries carry no single reliable foreign key. Resolution walks an
// ordered list of strategies, each trying a weaker signal than the last, and
// stops at the first hit. When only a service request can be found, a pending
// verification is created for it; when nothing is found but the payload names
// a phone number, a kyc_compliance request is bootstrapped.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"simkyc/internal/kyc/metrics"
	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	"simkyc/internal/kyc/ports"
	"simkyc/internal/msisdn"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/requestcontext"
)

// MatchedBy names the strategy that produced a resolution.
type MatchedBy string

const (
	MatchedByRecordID       MatchedBy = "record_id"
	MatchedByVerificationID MatchedBy = "verification_id"
	MatchedByIdentityID     MatchedBy = "identity_id"
	MatchedBySessionID      MatchedBy = "session_id"
	MatchedByRequestID      MatchedBy = "request_id"
	MatchedByMSISDN         MatchedBy = "msisdn"
	MatchedByBootstrap      MatchedBy = "bootstrap"
	MatchedByNone           MatchedBy = "none"
)

// BootstrapSource marks service requests created from a webhook.
const BootstrapSource = "metamap_webhook_bootstrap"

// Resolution is the outcome of Resolve. Both records are nil when the payload
// could not be linked.
type Resolution struct {
	Verification   *models.Verification
	ServiceRequest *models.ServiceRequest
	MatchedBy      MatchedBy
	// Created is set when the verification was synthesized during resolution.
	Created bool
}

// Linked reports whether a verification was resolved.
func (r Resolution) Linked() bool {
	return r.Verification != nil
}

// FlowIDs maps provider flow ids to document types.
type FlowIDs struct {
	Citizen    string
	NonCitizen string
}

// Resolver runs the correlation cascade against the record stores.
type Resolver struct {
	requests      ports.ServiceRequestStore
	verifications ports.VerificationStore
	flows         FlowIDs
	logger        *slog.Logger
	metrics       *metrics.Metrics
	strategies    []strategy
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func WithFlowIDs(flows FlowIDs) Option {
	return func(r *Resolver) {
		r.flows = flows
	}
}

// New constructs a Resolver.
func New(requests ports.ServiceRequestStore, verifications ports.VerificationStore, opts ...Option) (*Resolver, error) {
	if requests == nil {
		return nil, fmt.Errorf("service request store is required")
	}
	if verifications == nil {
		return nil, fmt.Errorf("verification store is required")
	}
	r := &Resolver{
		requests:      requests,
		verifications: verifications,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.strategies = []strategy{
		{MatchedByRecordID, r.byRecordID},
		{MatchedByVerificationID, r.byKey(ports.KeyVerificationID, func(p payload.Payload) string { return p.String("verificationId") })},
		{MatchedByIdentityID, r.byKey(ports.KeyIdentityID, func(p payload.Payload) string { return p.String("identityId") })},
		{MatchedBySessionID, r.byKey(ports.KeySessionID, sessionID)},
		{MatchedByRequestID, r.byRequestID},
		{MatchedByMSISDN, r.byMSISDN},
	}
	return r, nil
}

// strategy returns (nil, nil, nil) when its signal is absent or matches
// nothing. Store failures other than not-found stop the cascade.
type strategy struct {
	name MatchedBy
	find func(ctx context.Context, p payload.Payload) (*models.Verification, *models.ServiceRequest, error)
}

// Resolve finds the verification and service request p refers to, creating
// records where the cascade allows it. Callers should run it inside the same
// unit of work as the writes that follow.
func (r *Resolver) Resolve(ctx context.Context, p payload.Payload) (Resolution, error) {
	ctx, span := otel.Tracer("simkyc/kyc/resolver").Start(ctx, "resolver.Resolve")
	defer span.End()

	res, err := r.resolve(ctx, p)
	if err != nil {
		span.RecordError(err)
		return Resolution{}, err
	}
	span.SetAttributes(attribute.String("kyc.matched_by", string(res.MatchedBy)))
	r.metrics.IncrementCorrelation(string(res.MatchedBy))
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, p payload.Payload) (Resolution, error) {
	var res Resolution
	for _, s := range r.strategies {
		v, sr, err := s.find(ctx, p)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolve by %s: %w", s.name, err)
		}
		if v == nil && sr == nil {
			continue
		}
		res = Resolution{Verification: v, ServiceRequest: sr, MatchedBy: s.name}
		break
	}

	// A verification whose request row is gone still belongs to whoever owns
	// the phone number.
	if res.Verification != nil && res.ServiceRequest == nil {
		sr, err := r.requestByMSISDN(ctx, p)
		if err != nil {
			return Resolution{}, err
		}
		res.ServiceRequest = sr
	}

	if res.Verification == nil && res.ServiceRequest == nil {
		sr, err := r.bootstrap(ctx, p)
		if err != nil {
			return Resolution{}, err
		}
		if sr == nil {
			r.logger.InfoContext(ctx, "webhook payload did not match any kyc record",
				"request_id", requestcontext.RequestID(ctx),
				"verification_id", p.String("verificationId"),
				"identity_id", p.String("identityId"),
			)
			return Resolution{MatchedBy: MatchedByNone}, nil
		}
		res = Resolution{ServiceRequest: sr, MatchedBy: MatchedByBootstrap}
	}

	if res.Verification == nil {
		v, err := r.synthesize(ctx, res.ServiceRequest, p)
		if err != nil {
			return Resolution{}, err
		}
		res.Verification = v
		res.Created = true
	}
	return res, nil
}

func (r *Resolver) byRecordID(ctx context.Context, p payload.Payload) (*models.Verification, *models.ServiceRequest, error) {
	meta := p.Map("metadata")
	id, ok := firstInt(meta, "recordId", "kyc_verification_id")
	if !ok {
		return nil, nil, nil
	}
	v, err := r.verifications.FindByID(ctx, id)
	if err != nil {
		return nil, nil, ignoreNotFound(err)
	}
	return r.withRequest(ctx, v)
}

func (r *Resolver) byKey(key ports.CorrelationKey, value func(payload.Payload) string) func(context.Context, payload.Payload) (*models.Verification, *models.ServiceRequest, error) {
	return func(ctx context.Context, p payload.Payload) (*models.Verification, *models.ServiceRequest, error) {
		val := value(p)
		if val == "" {
			return nil, nil, nil
		}
		v, err := r.verifications.FindLatestByKey(ctx, key, val)
		if err != nil {
			return nil, nil, ignoreNotFound(err)
		}
		return r.withRequest(ctx, v)
	}
}

func (r *Resolver) byRequestID(ctx context.Context, p payload.Payload) (*models.Verification, *models.ServiceRequest, error) {
	id, ok := RequestID(p)
	if !ok {
		return nil, nil, nil
	}
	sr, err := r.requests.FindByID(ctx, id)
	if err != nil {
		return nil, nil, ignoreNotFound(err)
	}
	return r.withLatestVerification(ctx, sr)
}

func (r *Resolver) byMSISDN(ctx context.Context, p payload.Payload) (*models.Verification, *models.ServiceRequest, error) {
	sr, err := r.requestByMSISDN(ctx, p)
	if err != nil || sr == nil {
		return nil, nil, err
	}
	return r.withLatestVerification(ctx, sr)
}

func (r *Resolver) requestByMSISDN(ctx context.Context, p payload.Payload) (*models.ServiceRequest, error) {
	number := MSISDN(p)
	if number == "" {
		return nil, nil
	}
	sr, err := r.requests.FindLatestByMSISDN(ctx, number)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return sr, nil
}

func (r *Resolver) withRequest(ctx context.Context, v *models.Verification) (*models.Verification, *models.ServiceRequest, error) {
	sr, err := r.requests.FindByID(ctx, v.ServiceRequestID)
	if err != nil {
		return v, nil, ignoreNotFound(err)
	}
	return v, sr, nil
}

func (r *Resolver) withLatestVerification(ctx context.Context, sr *models.ServiceRequest) (*models.Verification, *models.ServiceRequest, error) {
	v, err := r.verifications.FindLatestForRequest(ctx, sr.ID)
	if err != nil {
		return nil, sr, ignoreNotFound(err)
	}
	return v, sr, nil
}

func (r *Resolver) bootstrap(ctx context.Context, p payload.Payload) (*models.ServiceRequest, error) {
	number := MSISDN(p)
	if number == "" {
		return nil, nil
	}
	now := requestcontext.Now(ctx)
	sr := &models.ServiceRequest{
		RequestType: models.RequestTypeKYCCompliance,
		MSISDN:      number,
		Status:      models.RequestStatusKYCPending,
		CurrentStep: models.StepVerification,
		OTPSkipped:  true,
		Metadata: models.Metadata{
			Source:         BootstrapSource,
			BootstrappedAt: models.TimePtr(now),
		},
	}
	if err := r.requests.Create(ctx, sr); err != nil {
		return nil, fmt.Errorf("bootstrap service request: %w", err)
	}
	r.logger.InfoContext(ctx, "bootstrapped service request from webhook",
		"request_id", requestcontext.RequestID(ctx),
		"service_request_id", sr.ID,
	)
	return sr, nil
}

func (r *Resolver) synthesize(ctx context.Context, sr *models.ServiceRequest, p payload.Payload) (*models.Verification, error) {
	v := &models.Verification{
		ServiceRequestID: sr.ID,
		Provider:         models.ProviderMetaMap,
		SessionID:        sessionID(p),
		VerificationID:   p.String("verificationId"),
		IdentityID:       p.String("identityId"),
		Status:           models.StatusPending,
		DocumentType:     r.DocumentType(p),
		RawResponse:      p.Clone(),
	}
	if err := r.verifications.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}
	return v, nil
}

// DocumentType reads metadata.documentType, falling back to the flow id.
// It returns "" when neither identifies a document.
func (r *Resolver) DocumentType(p payload.Payload) models.DocumentType {
	if dt := models.DocumentType(strings.ToLower(p.Map("metadata").String("documentType"))); dt != "" {
		return dt
	}
	flowID := p.String("flowId")
	switch {
	case flowID == "":
		return ""
	case r.flows.NonCitizen != "" && flowID == r.flows.NonCitizen:
		return models.DocumentPassport
	case r.flows.Citizen != "" && flowID == r.flows.Citizen:
		return models.DocumentOmang
	}
	return ""
}

// MSISDN returns the 8-digit local number named by the payload metadata or by
// the provider document's metadata.
func MSISDN(p payload.Payload) string {
	raw := p.Map("metadata").String("msisdn")
	if raw == "" {
		raw = p.Dig("full_verification", "metadata").String("msisdn")
	}
	return msisdn.Local(raw)
}

// RequestID returns the numeric service request id embedded in metadata.
func RequestID(p payload.Payload) (int64, bool) {
	return firstInt(p.Map("metadata"), "requestId", "serviceRequestId", "service_request_id")
}

func sessionID(p payload.Payload) string {
	return p.Map("metadata").FirstString("sessionId", "session_id")
}

func firstInt(p payload.Payload, keys ...string) (int64, bool) {
	for _, k := range keys {
		if n, ok := p.Int(k); ok {
			return n, true
		}
	}
	return 0, false
}

func ignoreNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	return err
}
