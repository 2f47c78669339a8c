package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"simkyc/internal/audit"
	auditstore "simkyc/internal/audit/store"
	"simkyc/internal/flow/models"
	"simkyc/internal/flow/store"
	kycmodels "simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	portmocks "simkyc/internal/kyc/ports/mocks"
	"simkyc/internal/kyc/refresh"
	"simkyc/internal/kyc/resolver"
	"simkyc/internal/kyc/store/servicerequest"
	"simkyc/internal/kyc/store/verification"
	subservice "simkyc/internal/subscriber/service"
	substore "simkyc/internal/subscriber/store"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/requestcontext"
)

// =============================================================================
// Flow Step Test Suite
// =============================================================================
// Justification for unit tests: the step machines own every status and
// current_step transition a client can trigger. Tests pin the transitions,
// the not-found rules and the audit trail.

type FlowSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	fetcher       *portmocks.MockVerificationFetcher
	requests      *servicerequest.InMemoryStore
	verifications *verification.InMemoryStore
	profiles      *store.InMemoryStore
	subscribers   *substore.InMemoryStore
	auditLog      *auditstore.InMemoryStore
	service       *Service
	ctx           context.Context
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.fetcher = portmocks.NewMockVerificationFetcher(s.ctrl)
	s.requests = servicerequest.NewInMemory()
	s.verifications = verification.NewInMemory()
	s.profiles = store.NewInMemory()
	s.subscribers = substore.NewInMemory()
	s.auditLog = auditstore.NewInMemory()
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	refresher, err := refresh.New(s.requests, s.verifications, s.fetcher, refresh.WithLogger(logger))
	s.Require().NoError(err)
	checker, err := subservice.New(s.subscribers)
	s.Require().NoError(err)
	recorder, err := audit.NewPublisher(s.auditLog)
	s.Require().NoError(err)

	s.service, err = New(s.requests, s.verifications, s.profiles, checker, refresher,
		WithLogger(logger),
		WithAudit(recorder),
	)
	s.Require().NoError(err)
}

func (s *FlowSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *FlowSuite) id(sr *kycmodels.ServiceRequest) string {
	return strconv.FormatInt(sr.ID, 10)
}

func (s *FlowSuite) actions() []audit.Action {
	var out []audit.Action
	for _, ev := range s.auditLog.All() {
		out = append(out, ev.Action)
	}
	return out
}

func (s *FlowSuite) TestNew() {
	s.Run("nil stores return error", func() {
		_, err := New(nil, s.verifications, s.profiles, nil, nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "kyc stores are required")
	})

	s.Run("nil refresher returns error", func() {
		checker, err := subservice.New(s.subscribers)
		s.Require().NoError(err)
		_, err = New(s.requests, s.verifications, s.profiles, checker, nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "refresher is required")
	})
}

func (s *FlowSuite) TestStart() {
	s.Run("esim skips otp and starts at terms", func() {
		sr, err := s.service.StartESIM(s.ctx)
		s.Require().NoError(err)
		s.Equal(kycmodels.RequestTypeESIMPurchase, sr.RequestType)
		s.Equal(models.StatusStarted, sr.Status)
		s.Equal(models.StepTerms, sr.CurrentStep)
		s.True(sr.OTPSkipped)
		s.Require().NotNil(sr.Metadata.StartedAt)
	})

	s.Run("sim swap starts at number", func() {
		sr, err := s.service.StartSIMSwap(s.ctx)
		s.Require().NoError(err)
		s.Equal(models.StepNumber, sr.CurrentStep)
		s.False(sr.OTPSkipped)
	})

	s.Run("compliance skips otp and starts at terms", func() {
		sr, err := s.service.StartCompliance(s.ctx)
		s.Require().NoError(err)
		s.Equal(models.StepTerms, sr.CurrentStep)
		s.True(sr.OTPSkipped)
	})

	s.Equal([]audit.Action{audit.ActionESIMStarted, audit.ActionSIMSwapStarted, audit.ActionComplianceStarted}, s.actions())
}

func (s *FlowSuite) TestSelectNumber() {
	sr, err := s.service.StartESIM(s.ctx)
	s.Require().NoError(err)

	s.Run("prefixed number is cut to local digits", func() {
		got, err := s.service.SelectNumber(s.ctx, s.id(sr), "26773234567")
		s.Require().NoError(err)
		s.Equal("73234567", got.MSISDN)
		s.Equal(models.StatusNumberSelected, got.Status)
		s.Equal(models.StepRegistration, got.CurrentStep)
	})

	s.Run("request of another type is not found", func() {
		swap, err := s.service.StartSIMSwap(s.ctx)
		s.Require().NoError(err)
		_, err = s.service.SelectNumber(s.ctx, s.id(swap), "73234567")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal("eSIM request not found.", dErrors.MessageOf(err))
	})

	s.Run("malformed id is not found", func() {
		_, err := s.service.SelectNumber(s.ctx, "abc", "73234567")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *FlowSuite) TestVerifySwapNumber() {
	sr, err := s.service.StartSIMSwap(s.ctx)
	s.Require().NoError(err)

	got, err := s.service.VerifySwapNumber(s.ctx, s.id(sr), "+26771234567")
	s.Require().NoError(err)
	s.Equal("71234567", got.MSISDN)
	s.Equal(models.StatusNumberVerified, got.Status)
	s.Equal(models.StepOTP, got.CurrentStep)

	_, err = s.service.VerifySwapNumber(s.ctx, "999", "71234567")
	s.Equal("SIM swap request not found.", dErrors.MessageOf(err))
}

func (s *FlowSuite) TestAcceptTerms() {
	sr, err := s.service.StartCompliance(s.ctx)
	s.Require().NoError(err)

	s.Run("declined terms are rejected", func() {
		_, err := s.service.AcceptTerms(s.ctx, s.id(sr), false)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("Terms must be accepted to continue.", dErrors.MessageOf(err))
	})

	s.Run("accepted terms advance to number", func() {
		got, err := s.service.AcceptTerms(s.ctx, s.id(sr), true)
		s.Require().NoError(err)
		s.Equal(models.StatusTermsAccepted, got.Status)
		s.Equal(models.StepNumber, got.CurrentStep)
		s.Require().NotNil(got.Metadata.TermsAccepted)
		s.True(*got.Metadata.TermsAccepted)
		s.NotNil(got.Metadata.StartedAt, "earlier metadata is preserved")
	})
}

func (s *FlowSuite) TestVerifyNumber() {
	_, _, err := s.subscribers.UpsertWhitelisted(s.ctx, []string{"71234567"})
	s.Require().NoError(err)
	sr, err := s.service.StartCompliance(s.ctx)
	s.Require().NoError(err)

	s.Run("malformed number", func() {
		_, err := s.service.VerifyNumber(s.ctx, s.id(sr), "7123")
		s.Equal("Invalid phone number format.", dErrors.MessageOf(err))
	})

	s.Run("unknown request is reported before a malformed number", func() {
		_, err := s.service.VerifyNumber(s.ctx, "999", "7123")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal("KYC request not found.", dErrors.MessageOf(err))
	})

	s.Run("unknown number only marks the request not verified", func() {
		_, err := s.service.VerifyNumber(s.ctx, s.id(sr), "72000000")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("Phone number is not eligible for this exercise.", dErrors.MessageOf(err))

		stored, err := s.requests.FindByID(s.ctx, sr.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusNumberNotVerified, stored.Status)
		s.Empty(stored.MSISDN)
		s.Nil(stored.Metadata.SubscriberLookup)
	})

	s.Run("whitelisted number advances to registration", func() {
		got, err := s.service.VerifyNumber(s.ctx, s.id(sr), "26771234567")
		s.Require().NoError(err)
		s.Equal("71234567", got.MSISDN)
		s.Equal(models.StatusNumberVerified, got.Status)
		s.Equal(models.StepRegistration, got.CurrentStep)
		s.True(got.Metadata.SubscriberLookup.Whitelisted)
		s.NotNil(got.Metadata.NumberVerifiedAt)
	})
}

func (s *FlowSuite) TestRejectedNumberStaysOutOfCorrelation() {
	_, _, err := s.subscribers.UpsertWhitelisted(s.ctx, []string{"79999999"})
	s.Require().NoError(err)

	esim, err := s.service.StartESIM(s.ctx)
	s.Require().NoError(err)
	_, err = s.service.SelectNumber(s.ctx, s.id(esim), "71234567")
	s.Require().NoError(err)
	_, pending, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeESIMPurchase, s.id(esim), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
	s.Require().NoError(err)

	compliance, err := s.service.StartCompliance(s.ctx)
	s.Require().NoError(err)
	_, err = s.service.VerifyNumber(s.ctx, s.id(compliance), "71234567")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))

	r, err := resolver.New(s.requests, s.verifications)
	s.Require().NoError(err)
	res, err := r.Resolve(s.ctx, payload.Payload{
		"metadata": map[string]any{"msisdn": "+26771234567"},
	})
	s.Require().NoError(err)
	s.Equal(resolver.MatchedByMSISDN, res.MatchedBy)
	s.Equal(esim.ID, res.ServiceRequest.ID)
	s.Equal(pending.ID, res.Verification.ID)
	s.False(res.Created)
}

func (s *FlowSuite) TestRegister() {
	sr, err := s.service.StartCompliance(s.ctx)
	s.Require().NoError(err)

	got, err := s.service.Register(s.ctx, s.id(sr), models.RegistrationProfile{City: "Gaborone", Email: "kabo@example.com"})
	s.Require().NoError(err)
	s.Equal(models.StatusRegistrationCompleted, got.Status)
	s.Equal(kycmodels.StepVerification, got.CurrentStep)

	_, err = s.service.Register(s.ctx, s.id(sr), models.RegistrationProfile{City: "Francistown"})
	s.Require().NoError(err)

	p, err := s.service.Profile(s.ctx, s.id(sr))
	s.Require().NoError(err)
	s.Equal("Francistown", p.City)
	s.Empty(p.Email, "upsert replaces the profile")
}

func (s *FlowSuite) TestStartKYC() {
	s.Run("esim reuses the latest verification", func() {
		sr, err := s.service.StartESIM(s.ctx)
		s.Require().NoError(err)

		_, first, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeESIMPurchase, s.id(sr), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)
		first.Status = kycmodels.StatusRejected
		s.Require().NoError(s.verifications.Update(s.ctx, first))

		got, second, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeESIMPurchase, s.id(sr), models.KYCStart{
			DocumentType:   kycmodels.DocumentPassport,
			VerificationID: "ver-2",
		})
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
		s.Equal(kycmodels.StatusPending, second.Status)
		s.Equal(kycmodels.DocumentPassport, second.DocumentType)
		s.Equal("ver-2", second.VerificationID)
		s.Equal(kycmodels.RequestStatusKYCPending, got.Status)
		s.Equal(second.ID, *got.Metadata.KYCVerificationID)
	})

	s.Run("compliance always creates a new verification", func() {
		sr, err := s.service.StartCompliance(s.ctx)
		s.Require().NoError(err)

		_, first, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(sr), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)
		_, second, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(sr), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)
		s.NotEqual(first.ID, second.ID)
		s.Equal(kycmodels.ProviderMetaMap, second.Provider)
	})
}

func (s *FlowSuite) TestKYCStatus() {
	sr, err := s.service.StartESIM(s.ctx)
	s.Require().NoError(err)
	_, v, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeESIMPurchase, s.id(sr), models.KYCStart{
		DocumentType:   kycmodels.DocumentOmang,
		VerificationID: "ver-77",
	})
	s.Require().NoError(err)

	s.Run("esim refreshes a pending verification", func() {
		s.fetcher.EXPECT().GetVerification(gomock.Any(), "ver-77").Return(payload.Payload{
			"identity": map[string]any{"id": "idn-1", "status": "verified"},
		})
		st, err := s.service.KYCStatus(s.ctx, kycmodels.RequestTypeESIMPurchase, s.id(sr))
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusVerified, st.Status)
		s.Equal(v.ID, st.Verification.ID)
		s.Equal("idn-1", st.Verification.IdentityID)
	})

	s.Run("provider id falls back to the verification", func() {
		st, err := s.service.KYCStatus(s.ctx, kycmodels.RequestTypeESIMPurchase, "idn-1")
		s.Require().NoError(err)
		s.Equal(v.ID, st.Verification.ID)
		s.Require().NotNil(st.Request)
		s.Equal(sr.ID, st.Request.ID)
	})

	s.Run("unknown id is pending without a verification", func() {
		st, err := s.service.KYCStatus(s.ctx, kycmodels.RequestTypeESIMPurchase, "nothing")
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusPending, st.Status)
		s.Nil(st.Verification)
	})

	s.Run("sim swap does not poll the provider", func() {
		swap, err := s.service.StartSIMSwap(s.ctx)
		s.Require().NoError(err)
		_, _, err = s.service.StartKYC(s.ctx, kycmodels.RequestTypeSIMSwap, s.id(swap), models.KYCStart{
			DocumentType:   kycmodels.DocumentOmang,
			VerificationID: "ver-swap",
		})
		s.Require().NoError(err)

		st, err := s.service.KYCStatus(s.ctx, kycmodels.RequestTypeSIMSwap, s.id(swap))
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusPending, st.Status)
	})
}

func (s *FlowSuite) TestComplianceStatus() {
	sr, err := s.service.StartCompliance(s.ctx)
	s.Require().NoError(err)

	st, err := s.service.ComplianceStatus(s.ctx, s.id(sr))
	s.Require().NoError(err)
	s.Nil(st.Verification)
	s.Equal(kycmodels.StatusPending, st.Status)

	_, _, err = s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(sr), models.KYCStart{
		DocumentType:   kycmodels.DocumentPassport,
		VerificationID: "ver-c1",
	})
	s.Require().NoError(err)
	s.fetcher.EXPECT().GetVerification(gomock.Any(), "ver-c1").Return(nil)

	st, err = s.service.ComplianceStatus(s.ctx, s.id(sr))
	s.Require().NoError(err)
	s.Require().NotNil(st.Verification)
	s.Equal(kycmodels.StatusPending, st.Status)
	s.Equal(kycmodels.RequestStatusKYCPending, st.Request.Status)
}

func (s *FlowSuite) TestComplete() {
	s.Run("unverified marks the request failed", func() {
		sr, err := s.service.StartCompliance(s.ctx)
		s.Require().NoError(err)

		_, err = s.service.Complete(s.ctx, s.id(sr), false, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("KYC verification must be successful before completion.", dErrors.MessageOf(err))

		stored, err := s.requests.FindByID(s.ctx, sr.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusFailed, stored.Status)
		s.NotNil(stored.Metadata.FailedAt)
	})

	s.Run("chosen verification is marked verified", func() {
		sr, err := s.service.StartCompliance(s.ctx)
		s.Require().NoError(err)
		_, first, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(sr), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)
		_, second, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(sr), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)

		got, err := s.service.Complete(s.ctx, s.id(sr), true, &first.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, got.Status)
		s.Equal(kycmodels.StepComplete, got.CurrentStep)
		s.NotNil(got.Metadata.CompletedAt)

		chosen, err := s.verifications.FindByID(s.ctx, first.ID)
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusVerified, chosen.Status)
		other, err := s.verifications.FindByID(s.ctx, second.ID)
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusPending, other.Status)
	})

	s.Run("verification of another request marks nothing", func() {
		other, err := s.service.StartCompliance(s.ctx)
		s.Require().NoError(err)
		_, foreign, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(other), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)
		sr, err := s.service.StartCompliance(s.ctx)
		s.Require().NoError(err)
		_, own, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(sr), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)

		got, err := s.service.Complete(s.ctx, s.id(sr), true, &foreign.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, got.Status)

		ownStored, err := s.verifications.FindByID(s.ctx, own.ID)
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusPending, ownStored.Status)
		foreignStored, err := s.verifications.FindByID(s.ctx, foreign.ID)
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusPending, foreignStored.Status)
	})

	s.Run("unknown verification id marks nothing", func() {
		sr, err := s.service.StartCompliance(s.ctx)
		s.Require().NoError(err)
		_, own, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(sr), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)
		missing := int64(9999)

		_, err = s.service.Complete(s.ctx, s.id(sr), true, &missing)
		s.Require().NoError(err)

		got, err := s.verifications.FindByID(s.ctx, own.ID)
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusPending, got.Status)
	})

	s.Run("no id marks the latest verification", func() {
		sr, err := s.service.StartCompliance(s.ctx)
		s.Require().NoError(err)
		_, own, err := s.service.StartKYC(s.ctx, kycmodels.RequestTypeKYCCompliance, s.id(sr), models.KYCStart{DocumentType: kycmodels.DocumentOmang})
		s.Require().NoError(err)

		_, err = s.service.Complete(s.ctx, s.id(sr), true, nil)
		s.Require().NoError(err)

		got, err := s.verifications.FindByID(s.ctx, own.ID)
		s.Require().NoError(err)
		s.Equal(kycmodels.StatusVerified, got.Status)
	})
}
