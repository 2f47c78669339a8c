package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	"simkyc/internal/kyc/store/servicerequest"
	"simkyc/internal/kyc/store/verification"
	"simkyc/pkg/requestcontext"
)

type ResolverSuite struct {
	suite.Suite
	requests      *servicerequest.InMemoryStore
	verifications *verification.InMemoryStore
	resolver      *Resolver
	ctx           context.Context
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.requests = servicerequest.NewInMemory()
	s.verifications = verification.NewInMemory()
	r, err := New(s.requests, s.verifications, WithFlowIDs(FlowIDs{Citizen: "flow-citizen", NonCitizen: "flow-foreign"}))
	s.Require().NoError(err)
	s.resolver = r
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC))
}

func (s *ResolverSuite) request(msisdn string) *models.ServiceRequest {
	sr := &models.ServiceRequest{RequestType: models.RequestTypeKYCCompliance, MSISDN: msisdn, Status: "started"}
	s.Require().NoError(s.requests.Create(s.ctx, sr))
	return sr
}

func (s *ResolverSuite) verification(srID int64, verificationID, identityID, sessionID string) *models.Verification {
	v := &models.Verification{
		ServiceRequestID: srID,
		VerificationID:   verificationID,
		IdentityID:       identityID,
		SessionID:        sessionID,
		Status:           models.StatusPending,
	}
	s.Require().NoError(s.verifications.Create(s.ctx, v))
	return v
}

func (s *ResolverSuite) TestCascadeOrder() {
	s.Run("record id beats a mismatched verification id", func() {
		sr := s.request("")
		byRecord := s.verification(sr.ID, "ver-a", "", "")
		s.verification(sr.ID, "ver-b", "", "")

		res, err := s.resolver.Resolve(s.ctx, payload.Payload{
			"verificationId": "ver-b",
			"metadata":       map[string]any{"recordId": float64(byRecord.ID)},
		})
		s.Require().NoError(err)
		s.Equal(MatchedByRecordID, res.MatchedBy)
		s.Equal(byRecord.ID, res.Verification.ID)
		s.Equal(sr.ID, res.ServiceRequest.ID)
		s.False(res.Created)
	})

	s.Run("verification id picks the latest match", func() {
		sr := s.request("")
		s.verification(sr.ID, "ver-dup", "", "")
		latest := s.verification(sr.ID, "ver-dup", "", "")

		res, err := s.resolver.Resolve(s.ctx, payload.Payload{"verificationId": "ver-dup"})
		s.Require().NoError(err)
		s.Equal(MatchedByVerificationID, res.MatchedBy)
		s.Equal(latest.ID, res.Verification.ID)
	})

	s.Run("identity id", func() {
		sr := s.request("")
		v := s.verification(sr.ID, "", "idn-1", "")

		res, err := s.resolver.Resolve(s.ctx, payload.Payload{"verificationId": "unknown", "identityId": "idn-1"})
		s.Require().NoError(err)
		s.Equal(MatchedByIdentityID, res.MatchedBy)
		s.Equal(v.ID, res.Verification.ID)
	})

	s.Run("session id from metadata", func() {
		sr := s.request("")
		v := s.verification(sr.ID, "", "", "sess-9")

		res, err := s.resolver.Resolve(s.ctx, payload.Payload{"metadata": map[string]any{"session_id": "sess-9"}})
		s.Require().NoError(err)
		s.Equal(MatchedBySessionID, res.MatchedBy)
		s.Equal(v.ID, res.Verification.ID)
	})

	s.Run("request id takes the newest verification", func() {
		sr := s.request("")
		s.verification(sr.ID, "", "", "")
		newest := s.verification(sr.ID, "", "", "")

		res, err := s.resolver.Resolve(s.ctx, payload.Payload{"metadata": map[string]any{"serviceRequestId": float64(sr.ID)}})
		s.Require().NoError(err)
		s.Equal(MatchedByRequestID, res.MatchedBy)
		s.Equal(sr.ID, res.ServiceRequest.ID)
		s.Equal(newest.ID, res.Verification.ID)
	})
}

func (s *ResolverSuite) TestRequestWithoutVerificationGetsPendingVerification() {
	sr := s.request("71234567")
	p := payload.Payload{
		"verificationId": "ver-new",
		"flowId":         "flow-foreign",
		"metadata":       map[string]any{"msisdn": "+267 7123 4567"},
	}

	res, err := s.resolver.Resolve(s.ctx, p)
	s.Require().NoError(err)
	s.Equal(MatchedByMSISDN, res.MatchedBy)
	s.True(res.Created)
	s.Equal(sr.ID, res.Verification.ServiceRequestID)
	s.Equal(models.StatusPending, res.Verification.Status)
	s.Equal("ver-new", res.Verification.VerificationID)
	s.Equal(models.DocumentPassport, res.Verification.DocumentType)
	s.Equal("ver-new", res.Verification.RawResponse.String("verificationId"))
}

func (s *ResolverSuite) TestBootstrap() {
	s.Run("unknown phone number creates a kyc_compliance request", func() {
		res, err := s.resolver.Resolve(s.ctx, payload.Payload{
			"verificationId":    "ver-boot",
			"full_verification": map[string]any{"metadata": map[string]any{"msisdn": "26772000000"}},
		})
		s.Require().NoError(err)
		s.Equal(MatchedByBootstrap, res.MatchedBy)
		s.Require().NotNil(res.ServiceRequest)
		s.Equal(models.RequestTypeKYCCompliance, res.ServiceRequest.RequestType)
		s.Equal("72000000", res.ServiceRequest.MSISDN)
		s.Equal(models.RequestStatusKYCPending, res.ServiceRequest.Status)
		s.Equal(models.StepVerification, res.ServiceRequest.CurrentStep)
		s.True(res.ServiceRequest.OTPSkipped)
		s.Equal(BootstrapSource, res.ServiceRequest.Metadata.Source)
		s.NotNil(res.ServiceRequest.Metadata.BootstrappedAt)
		s.True(res.Created)
	})

	s.Run("redelivery reuses the bootstrapped records", func() {
		before, err := s.requests.Count(s.ctx)
		s.Require().NoError(err)

		res, err := s.resolver.Resolve(s.ctx, payload.Payload{
			"verificationId": "ver-boot",
			"metadata":       map[string]any{"msisdn": "72000000"},
		})
		s.Require().NoError(err)
		s.Equal(MatchedByVerificationID, res.MatchedBy)
		s.False(res.Created)

		after, err := s.requests.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)
	})
}

func (s *ResolverSuite) TestUnresolvable() {
	res, err := s.resolver.Resolve(s.ctx, payload.Payload{"verificationId": "nobody"})
	s.Require().NoError(err)
	s.False(res.Linked())
	s.Equal(MatchedByNone, res.MatchedBy)
	s.Nil(res.ServiceRequest)

	n, err := s.requests.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ResolverSuite) TestOrphanVerificationFallsBackToMSISDN() {
	owner := s.request("71111111")
	orphan := s.verification(999, "ver-orphan", "", "")

	res, err := s.resolver.Resolve(s.ctx, payload.Payload{
		"verificationId": "ver-orphan",
		"metadata":       map[string]any{"msisdn": "71111111"},
	})
	s.Require().NoError(err)
	s.Equal(orphan.ID, res.Verification.ID)
	s.Require().NotNil(res.ServiceRequest)
	s.Equal(owner.ID, res.ServiceRequest.ID)
}

func (s *ResolverSuite) TestDocumentType() {
	s.Equal(models.DocumentPassport, s.resolver.DocumentType(payload.Payload{"metadata": map[string]any{"documentType": "PASSPORT"}}))
	s.Equal(models.DocumentOmang, s.resolver.DocumentType(payload.Payload{"flowId": "flow-citizen"}))
	s.Equal(models.DocumentPassport, s.resolver.DocumentType(payload.Payload{"flowId": "flow-foreign"}))
	s.Equal(models.DocumentType(""), s.resolver.DocumentType(payload.Payload{"flowId": "other"}))
}

func TestNewRequiresStores(t *testing.T) {
	_, err := New(nil, verification.NewInMemory())
	assert.Error(t, err)
	_, err = New(servicerequest.NewInMemory(), nil)
	assert.Error(t, err)
}

func TestSelectBest(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("progressed attempt beats newer placeholder", func(t *testing.T) {
		progressed := &models.Verification{ID: 1, VerificationID: "ver-1", Status: models.StatusPending, UpdatedAt: t0}
		placeholder := &models.Verification{ID: 2, Status: models.StatusPending, UpdatedAt: t0.Add(time.Hour)}
		assert.Equal(t, progressed, SelectBest([]*models.Verification{placeholder, progressed}))
	})

	t.Run("latest update wins among progressed", func(t *testing.T) {
		older := &models.Verification{ID: 5, Status: models.StatusRejected, UpdatedAt: t0}
		fresher := &models.Verification{ID: 3, IdentityID: "idn", UpdatedAt: t0.Add(time.Minute)}
		assert.Equal(t, fresher, SelectBest([]*models.Verification{older, fresher}))
	})

	t.Run("equal update time falls back to id", func(t *testing.T) {
		a := &models.Verification{ID: 7, VerificationID: "a", UpdatedAt: t0}
		b := &models.Verification{ID: 8, VerificationID: "b", UpdatedAt: t0}
		assert.Equal(t, b, SelectBest([]*models.Verification{a, b}))
	})

	t.Run("no progressed attempt takes the newest", func(t *testing.T) {
		a := &models.Verification{ID: 1, Status: models.StatusPending}
		b := &models.Verification{ID: 2, Status: models.StatusPending}
		assert.Equal(t, b, SelectBest([]*models.Verification{a, b}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, SelectBest(nil))
	})
}
