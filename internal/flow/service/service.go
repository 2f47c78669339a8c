// Package service implements the eSIM, SIM-swap and KYC-compliance step
// machines over the shared service request and verification records.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"simkyc/internal/audit"
	"simkyc/internal/flow/models"
	kycmodels "simkyc/internal/kyc/models"
	"simkyc/internal/kyc/ports"
	"simkyc/internal/kyc/resolver"
	"simkyc/internal/kyc/status"
	"simkyc/internal/msisdn"
	submodels "simkyc/internal/subscriber/models"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/platform/tx"
	"simkyc/pkg/requestcontext"
)

// Recorder writes flow step audit entries. Failures are the recorder's
// concern.
type Recorder interface {
	Record(ctx context.Context, action audit.Action, serviceRequestID int64, payload map[string]any)
}

// Refresher polls the provider for a pending verification.
type Refresher interface {
	RefreshIfNeeded(ctx context.Context, v *kycmodels.Verification, sr *kycmodels.ServiceRequest) (*kycmodels.Verification, error)
}

// SubscriberChecker reports whether a normalized number is whitelisted.
type SubscriberChecker interface {
	Check(ctx context.Context, n string) (submodels.Lookup, error)
}

// ProfileStore persists registration profiles.
type ProfileStore interface {
	Upsert(ctx context.Context, p *models.RegistrationProfile) error
	FindByRequest(ctx context.Context, serviceRequestID int64) (*models.RegistrationProfile, error)
}

type Service struct {
	requests      ports.ServiceRequestStore
	verifications ports.VerificationStore
	profiles      ProfileStore
	subscribers   SubscriberChecker
	refresher     Refresher
	audit         Recorder
	tx            tx.Runner
	logger        *slog.Logger
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

func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func New(
	requests ports.ServiceRequestStore,
	verifications ports.VerificationStore,
	profiles ProfileStore,
	subscribers SubscriberChecker,
	refresher Refresher,
	opts ...Option,
) (*Service, error) {
	if requests == nil || verifications == nil {
		return nil, errors.New("kyc stores are required")
	}
	if profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if subscribers == nil {
		return nil, errors.New("subscriber checker is required")
	}
	if refresher == nil {
		return nil, errors.New("refresher is required")
	}
	s := &Service{
		requests:      requests,
		verifications: verifications,
		profiles:      profiles,
		subscribers:   subscribers,
		refresher:     refresher,
		audit:         nopRecorder{},
		tx:            tx.NoopRunner{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.Action, int64, map[string]any) {}

var notFoundMessages = map[kycmodels.RequestType]string{
	kycmodels.RequestTypeESIMPurchase:  "eSIM request not found.",
	kycmodels.RequestTypeSIMSwap:       "SIM swap request not found.",
	kycmodels.RequestTypeKYCCompliance: "KYC request not found.",
}

var kycStartedActions = map[kycmodels.RequestType]audit.Action{
	kycmodels.RequestTypeESIMPurchase:  audit.ActionESIMKYCStarted,
	kycmodels.RequestTypeSIMSwap:       audit.ActionSIMSwapKYCStarted,
	kycmodels.RequestTypeKYCCompliance: audit.ActionComplianceKYCStarted,
}

// StartESIM opens an eSIM purchase. OTP is skipped for this flow.
func (s *Service) StartESIM(ctx context.Context) (*kycmodels.ServiceRequest, error) {
	return s.start(ctx, kycmodels.RequestTypeESIMPurchase, models.StepTerms, true, audit.ActionESIMStarted)
}

func (s *Service) StartSIMSwap(ctx context.Context) (*kycmodels.ServiceRequest, error) {
	return s.start(ctx, kycmodels.RequestTypeSIMSwap, models.StepNumber, false, audit.ActionSIMSwapStarted)
}

func (s *Service) StartCompliance(ctx context.Context) (*kycmodels.ServiceRequest, error) {
	return s.start(ctx, kycmodels.RequestTypeKYCCompliance, models.StepTerms, true, audit.ActionComplianceStarted)
}

func (s *Service) start(ctx context.Context, t kycmodels.RequestType, step string, otpSkipped bool, action audit.Action) (*kycmodels.ServiceRequest, error) {
	sr := &kycmodels.ServiceRequest{
		RequestType: t,
		Status:      models.StatusStarted,
		CurrentStep: step,
		OTPSkipped:  otpSkipped,
		Metadata:    kycmodels.Metadata{StartedAt: kycmodels.TimePtr(requestcontext.Now(ctx))},
	}
	if err := s.requests.Create(ctx, sr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create service request")
	}
	s.audit.Record(ctx, action, sr.ID, nil)
	s.logger.InfoContext(ctx, "flow started",
		"request_id", requestcontext.RequestID(ctx),
		"service_request_id", sr.ID,
		"request_type", t,
	)
	return sr, nil
}

// SelectNumber stores the eSIM number the customer picked.
func (s *Service) SelectNumber(ctx context.Context, id, raw string) (*kycmodels.ServiceRequest, error) {
	sr, err := s.request(ctx, kycmodels.RequestTypeESIMPurchase, id)
	if err != nil {
		return nil, err
	}
	sr.MSISDN = msisdn.Selected(raw)
	sr.Status = models.StatusNumberSelected
	sr.CurrentStep = models.StepRegistration
	if err := s.requests.Update(ctx, sr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update service request")
	}
	s.audit.Record(ctx, audit.ActionESIMNumberSelected, sr.ID, map[string]any{"msisdn": sr.MSISDN})
	return sr, nil
}

// VerifySwapNumber stores the number whose SIM is being swapped and moves on
// to the OTP step.
func (s *Service) VerifySwapNumber(ctx context.Context, id, raw string) (*kycmodels.ServiceRequest, error) {
	sr, err := s.request(ctx, kycmodels.RequestTypeSIMSwap, id)
	if err != nil {
		return nil, err
	}
	sr.MSISDN = msisdn.Selected(raw)
	sr.Status = models.StatusNumberVerified
	sr.CurrentStep = models.StepOTP
	if err := s.requests.Update(ctx, sr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update service request")
	}
	s.audit.Record(ctx, audit.ActionSIMSwapNumber, sr.ID, map[string]any{"msisdn": sr.MSISDN})
	return sr, nil
}

// AcceptTerms records the compliance terms decision. Declining is rejected
// before the request is looked up.
func (s *Service) AcceptTerms(ctx context.Context, id string, accepted bool) (*kycmodels.ServiceRequest, error) {
	if !accepted {
		return nil, dErrors.New(dErrors.CodeValidation, "Terms must be accepted to continue.")
	}
	sr, err := s.request(ctx, kycmodels.RequestTypeKYCCompliance, id)
	if err != nil {
		return nil, err
	}
	sr.Status = models.StatusTermsAccepted
	sr.CurrentStep = models.StepNumber
	sr.Metadata = sr.Metadata.Merge(kycmodels.Metadata{
		TermsAccepted:   &accepted,
		TermsAcceptedAt: kycmodels.TimePtr(requestcontext.Now(ctx)),
	})
	if err := s.requests.Update(ctx, sr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update service request")
	}
	s.audit.Record(ctx, audit.ActionComplianceTerms, sr.ID, map[string]any{"accepted": accepted})
	return sr, nil
}

// VerifyNumber checks the compliance number against the subscriber
// whitelist. An ineligible attempt only moves the request to
// number_not_verified; the number itself is kept off the request so it
// cannot take part in MSISDN correlation.
func (s *Service) VerifyNumber(ctx context.Context, id, raw string) (*kycmodels.ServiceRequest, error) {
	sr, err := s.request(ctx, kycmodels.RequestTypeKYCCompliance, id)
	if err != nil {
		return nil, err
	}
	n, ok := msisdn.Strict(raw)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Invalid phone number format.")
	}
	lookup, err := s.subscribers.Check(ctx, n)
	if err != nil {
		return nil, err
	}

	eligible := lookup.RecordExists && lookup.IsWhitelisted
	if eligible {
		sr.MSISDN = n
		sr.Status = models.StatusNumberVerified
		sr.CurrentStep = models.StepRegistration
		sr.Metadata = sr.Metadata.Merge(kycmodels.Metadata{
			SubscriberLookup: &kycmodels.SubscriberLookup{Exists: lookup.RecordExists, Whitelisted: lookup.IsWhitelisted},
			NumberVerifiedAt: kycmodels.TimePtr(requestcontext.Now(ctx)),
		})
	} else {
		sr.Status = models.StatusNumberNotVerified
	}
	if err := s.requests.Update(ctx, sr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update service request")
	}
	s.audit.Record(ctx, audit.ActionComplianceNumber, sr.ID, map[string]any{"msisdn": n, "eligible": eligible})

	if !eligible {
		return nil, dErrors.New(dErrors.CodeValidation, "Phone number is not eligible for this exercise.")
	}
	return sr, nil
}

// Register upserts the registration profile for a compliance request.
func (s *Service) Register(ctx context.Context, id string, profile models.RegistrationProfile) (*kycmodels.ServiceRequest, error) {
	sr, err := s.request(ctx, kycmodels.RequestTypeKYCCompliance, id)
	if err != nil {
		return nil, err
	}
	profile.ServiceRequestID = sr.ID
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.profiles.Upsert(ctx, &profile); err != nil {
			return err
		}
		sr.Status = models.StatusRegistrationCompleted
		sr.CurrentStep = kycmodels.StepVerification
		sr.Metadata = sr.Metadata.Merge(kycmodels.Metadata{RegistrationCompletedAt: kycmodels.TimePtr(requestcontext.Now(ctx))})
		return s.requests.Update(ctx, sr)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save registration")
	}
	s.audit.Record(ctx, audit.ActionComplianceRegistered, sr.ID, nil)
	return sr, nil
}

// StartKYC attaches a pending verification to the request. eSIM and SIM-swap
// reuse the latest verification; compliance always starts a new one.
func (s *Service) StartKYC(ctx context.Context, t kycmodels.RequestType, id string, in models.KYCStart) (*kycmodels.ServiceRequest, *kycmodels.Verification, error) {
	sr, err := s.request(ctx, t, id)
	if err != nil {
		return nil, nil, err
	}

	var v *kycmodels.Verification
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if t != kycmodels.RequestTypeKYCCompliance {
			latest, err := s.verifications.FindLatestForRequest(ctx, sr.ID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return fmt.Errorf("find latest verification: %w", err)
			}
			v = latest
		}

		if v != nil {
			v.Status = kycmodels.StatusPending
			overlay(v, in)
			if err := s.verifications.Update(ctx, v); err != nil {
				return err
			}
		} else {
			v = &kycmodels.Verification{
				ServiceRequestID: sr.ID,
				Provider:         kycmodels.ProviderMetaMap,
				Status:           kycmodels.StatusPending,
			}
			overlay(v, in)
			if err := s.verifications.Create(ctx, v); err != nil {
				return err
			}
		}

		sr.Status = kycmodels.RequestStatusKYCPending
		sr.CurrentStep = kycmodels.StepVerification
		sr.Metadata = sr.Metadata.Merge(kycmodels.Metadata{
			KYCStartedAt:      kycmodels.TimePtr(requestcontext.Now(ctx)),
			KYCVerificationID: &v.ID,
		})
		return s.requests.Update(ctx, sr)
	})
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start kyc")
	}

	s.audit.Record(ctx, kycStartedActions[t], sr.ID, map[string]any{
		"kyc_verification_id": v.ID,
		"document_type":       string(v.DocumentType),
	})
	return sr, v, nil
}

func overlay(v *kycmodels.Verification, in models.KYCStart) {
	if in.DocumentType != "" {
		v.DocumentType = in.DocumentType
	}
	if in.SessionID != "" {
		v.SessionID = in.SessionID
	}
	if in.VerificationID != "" {
		v.VerificationID = in.VerificationID
	}
	if in.IdentityID != "" {
		v.IdentityID = in.IdentityID
	}
}

// KYCStatus reports verification progress for an eSIM or SIM-swap request.
// id may also be a provider verification, identity or session id. Only eSIM
// polls the provider.
func (s *Service) KYCStatus(ctx context.Context, t kycmodels.RequestType, id string) (*models.KYCStatus, error) {
	var (
		sr *kycmodels.ServiceRequest
		v  *kycmodels.Verification
	)
	if found, err := s.request(ctx, t, id); err == nil {
		sr = found
		list, err := s.verifications.ListForRequest(ctx, sr.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verifications")
		}
		v = resolver.SelectBest(list)
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, err
	}

	if v == nil {
		found, err := s.verifications.FindLatestByAnyKey(ctx, id)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
		}
		v = found
	}
	if v == nil {
		return &models.KYCStatus{Request: sr, Status: kycmodels.StatusPending}, nil
	}
	if sr == nil {
		owner, err := s.requests.FindByID(ctx, v.ServiceRequestID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load service request")
		}
		sr = owner
	}

	if t == kycmodels.RequestTypeESIMPurchase {
		refreshed, err := s.refresher.RefreshIfNeeded(ctx, v, sr)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to refresh verification")
		}
		v = refreshed
	}
	return &models.KYCStatus{
		Request:      sr,
		Verification: v,
		Status:       status.Normalize(string(v.Status), v.RawResponse),
	}, nil
}

// ComplianceStatus reports the compliance request and its best verification,
// refreshed from the provider when still pending.
func (s *Service) ComplianceStatus(ctx context.Context, id string) (*models.KYCStatus, error) {
	sr, err := s.request(ctx, kycmodels.RequestTypeKYCCompliance, id)
	if err != nil {
		return nil, err
	}
	list, err := s.verifications.ListForRequest(ctx, sr.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verifications")
	}
	v := resolver.SelectBest(list)
	if v == nil {
		return &models.KYCStatus{Request: sr, Status: kycmodels.StatusPending}, nil
	}
	v, err = s.refresher.RefreshIfNeeded(ctx, v, sr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to refresh verification")
	}
	return &models.KYCStatus{
		Request:      sr,
		Verification: v,
		Status:       status.Normalize(string(v.Status), v.RawResponse),
	}, nil
}

// Complete closes a compliance request. When verified is false the request is
// marked failed and a validation error is returned. kycVerificationID picks a
// verification of this request; an id that names another request's
// verification marks nothing. Without an id the latest is used.
func (s *Service) Complete(ctx context.Context, id string, verified bool, kycVerificationID *int64) (*kycmodels.ServiceRequest, error) {
	sr, err := s.request(ctx, kycmodels.RequestTypeKYCCompliance, id)
	if err != nil {
		return nil, err
	}

	if !verified {
		sr.Status = models.StatusFailed
		sr.Metadata = sr.Metadata.Merge(kycmodels.Metadata{FailedAt: kycmodels.TimePtr(requestcontext.Now(ctx))})
		if err := s.requests.Update(ctx, sr); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update service request")
		}
		s.audit.Record(ctx, audit.ActionComplianceCompleted, sr.ID, map[string]any{"verified": false})
		return nil, dErrors.New(dErrors.CodeValidation, "KYC verification must be successful before completion.")
	}

	var completedID int64
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		v, err := s.completionTarget(ctx, sr.ID, kycVerificationID)
		if err != nil {
			return err
		}
		if v != nil {
			v.Status = kycmodels.StatusVerified
			if err := s.verifications.Update(ctx, v); err != nil {
				return err
			}
			completedID = v.ID
		}
		sr.Status = models.StatusCompleted
		sr.CurrentStep = kycmodels.StepComplete
		sr.Metadata = sr.Metadata.Merge(kycmodels.Metadata{CompletedAt: kycmodels.TimePtr(requestcontext.Now(ctx))})
		return s.requests.Update(ctx, sr)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete kyc request")
	}
	s.audit.Record(ctx, audit.ActionComplianceCompleted, sr.ID, map[string]any{
		"verified":            true,
		"kyc_verification_id": completedID,
	})
	return sr, nil
}

func (s *Service) completionTarget(ctx context.Context, serviceRequestID int64, kycVerificationID *int64) (*kycmodels.Verification, error) {
	if kycVerificationID != nil && *kycVerificationID != 0 {
		v, err := s.verifications.FindByID(ctx, *kycVerificationID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find verification: %w", err)
		}
		if v.ServiceRequestID != serviceRequestID {
			return nil, nil
		}
		return v, nil
	}
	v, err := s.verifications.FindLatestForRequest(ctx, serviceRequestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest verification: %w", err)
	}
	return v, nil
}

// Profile returns the registration profile of a compliance request.
func (s *Service) Profile(ctx context.Context, id string) (*models.RegistrationProfile, error) {
	sr, err := s.request(ctx, kycmodels.RequestTypeKYCCompliance, id)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.FindByRequest(ctx, sr.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "Registration profile not found.")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration profile")
	}
	return p, nil
}

// request loads the service request id of type t. A malformed id, a missing
// row and a row of another type are all not found.
func (s *Service) request(ctx context.Context, t kycmodels.RequestType, id string) (*kycmodels.ServiceRequest, error) {
	notFound := dErrors.New(dErrors.CodeNotFound, notFoundMessages[t])
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return nil, notFound
	}
	sr, err := s.requests.FindByID(ctx, n)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load service request")
	}
	if sr.RequestType != t {
		return nil, notFound
	}
	return sr, nil
}
