package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	portmocks "simkyc/internal/kyc/ports/mocks"
	"simkyc/internal/kyc/resolver"
	"simkyc/internal/kyc/store/servicerequest"
	"simkyc/internal/kyc/store/verification"
	"simkyc/internal/metamap/webhook/mocks"
	"simkyc/internal/metamap/webhook/store"
	"simkyc/pkg/requestcontext"
)

// =============================================================================
// Webhook Processing Test Suite
// =============================================================================
// Justification for unit tests: webhook handling is the only writer that
// reconciles provider pushes with stored records. Tests pin the rejection
// paths, the audit trail and convergence under redelivery.

const testSecret = "whsec"

type ServiceSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	fetcher       *portmocks.MockVerificationFetcher
	events        *store.InMemoryStore
	requests      *servicerequest.InMemoryStore
	verifications *verification.InMemoryStore
	service       *Service
	ctx           context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.fetcher = portmocks.NewMockVerificationFetcher(s.ctrl)
	s.events = store.NewInMemory()
	s.requests = servicerequest.NewInMemory()
	s.verifications = verification.NewInMemory()
	s.service = s.newService(WithSecret(testSecret))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	res, err := resolver.New(s.requests, s.verifications, resolver.WithFlowIDs(resolver.FlowIDs{Citizen: "flow-citizen", NonCitizen: "flow-foreign"}))
	s.Require().NoError(err)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	svc, err := New(s.events, s.fetcher, res, s.requests, s.verifications, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) signed(body string) Delivery {
	return Delivery{Body: []byte(body), Signature: "sha256=" + Sign(testSecret, []byte(body))}
}

func (s *ServiceSuite) seed(msisdn, verificationID string) (*models.ServiceRequest, *models.Verification) {
	sr := &models.ServiceRequest{
		RequestType: models.RequestTypeKYCCompliance,
		MSISDN:      msisdn,
		Status:      models.RequestStatusKYCPending,
		CurrentStep: models.StepVerification,
	}
	s.Require().NoError(s.requests.Create(s.ctx, sr))
	v := &models.Verification{ServiceRequestID: sr.ID, VerificationID: verificationID, Status: models.StatusPending}
	s.Require().NoError(s.verifications.Create(s.ctx, v))
	return sr, v
}

func (s *ServiceSuite) savedEvents() []models.WebhookEvent {
	all, err := s.events.All(s.ctx)
	s.Require().NoError(err)
	return all
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil event store returns error", func() {
		_, err := New(nil, s.fetcher, &resolver.Resolver{}, s.requests, s.verifications)
		s.Require().Error(err)
		s.Contains(err.Error(), "event store is required")
	})

	s.Run("nil fetcher returns error", func() {
		_, err := New(s.events, nil, &resolver.Resolver{}, s.requests, s.verifications)
		s.Require().Error(err)
		s.Contains(err.Error(), "verification fetcher is required")
	})
}

func (s *ServiceSuite) TestSignature() {
	body := `{"eventName":"step_completed","verificationId":"ver-1"}`

	s.Run("mismatched signature is audited without payload", func() {
		res, err := s.service.Process(s.ctx, Delivery{Body: []byte(body), Signature: "sha256=deadbeef"})
		s.Require().NoError(err)
		s.Equal(OutcomeInvalidSignature, res.Outcome)
		s.True(res.EventSaved)

		saved := s.savedEvents()
		s.Require().Len(saved, 1)
		s.Require().NotNil(saved[0].SignatureValid)
		s.False(*saved[0].SignatureValid)
		s.Nil(saved[0].Payload)
		s.Equal(body, saved[0].RawPayload)
	})

	s.Run("one altered byte is rejected", func() {
		d := s.signed(body)
		d.Body[len(d.Body)-2] = '2'
		res, err := s.service.Process(s.ctx, d)
		s.Require().NoError(err)
		s.Equal(OutcomeInvalidSignature, res.Outcome)
	})

	s.Run("valid signature is recorded as valid", func() {
		_, err := s.service.Process(s.ctx, s.signed(body))
		s.Require().NoError(err)

		saved := s.savedEvents()
		last := saved[len(saved)-1]
		s.Require().NotNil(last.SignatureValid)
		s.True(*last.SignatureValid)
	})

	s.Run("no secret leaves validity unknown", func() {
		svc := s.newService()
		_, err := svc.Process(s.ctx, Delivery{Body: []byte(body), Signature: "garbage"})
		s.Require().NoError(err)

		saved := s.savedEvents()
		s.Nil(saved[len(saved)-1].SignatureValid)
	})
}

func (s *ServiceSuite) TestNonObjectBodyIsRejectedAfterAudit() {
	res, err := s.service.Process(s.ctx, s.signed(`["not","an","object"]`))
	s.Require().NoError(err)
	s.Equal(OutcomeInvalidPayload, res.Outcome)
	s.True(res.EventSaved)

	saved := s.savedEvents()
	s.Require().Len(saved, 1)
	s.Nil(saved[0].Payload)
}

func (s *ServiceSuite) TestUnresolvableWritesOneAuditRecord() {
	res, err := s.service.Process(s.ctx, s.signed(`{"eventName":"step_completed","verificationId":"nobody"}`))
	s.Require().NoError(err)
	s.Equal(OutcomeUnmatched, res.Outcome)
	s.Equal("step_completed", res.EventName)

	s.Len(s.savedEvents(), 1)
	n, err := s.requests.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ServiceSuite) TestVerificationCompletedIsEnriched() {
	sr, v := s.seed("71234567", "ver-42")
	s.fetcher.EXPECT().GetVerification(gomock.Any(), "ver-42").Return(payload.Payload{
		"id":       "ver-42",
		"identity": map[string]any{"id": "idn-9", "status": "verified"},
		"documents": []any{map[string]any{
			"photos": []any{"https://cdn/front.jpg", "https://cdn/back.jpg", "https://cdn/front.jpg"},
			"fields": map[string]any{
				"firstName":      map[string]any{"value": "Kabo"},
				"surname":        map[string]any{"value": "Molefe"},
				"dateOfBirth":    map[string]any{"value": "12/04/1990"},
				"documentNumber": map[string]any{"value": "123456789"},
			},
		}},
		"steps": []any{map[string]any{"data": map[string]any{"selfieUrl": "https://cdn/selfie.jpg"}}},
	})

	res, err := s.service.Process(s.ctx, s.signed(`{"eventName":"verification_completed","resource":"https://api.getmati.com/v2/verifications/ver-42","flowId":"flow-citizen"}`))
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, res.Outcome)
	s.Equal(v.ID, res.VerificationRecordID)
	s.Equal(models.StatusVerified, res.Status)

	got, err := s.verifications.FindByID(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal("idn-9", got.IdentityID)
	s.Equal(models.DocumentOmang, got.DocumentType)
	s.Equal("Kabo Molefe", got.Person.FullName)
	s.Equal("123456789", got.Person.DocumentNumber)
	s.Equal("https://cdn/selfie.jpg", got.SelfieURL)
	s.Equal([]string{"https://cdn/front.jpg", "https://cdn/back.jpg"}, got.DocumentPhotos)
	s.Equal("ver-42", got.RawResponse.Map("full_verification").String("id"))

	updated, err := s.requests.FindByID(s.ctx, sr.ID)
	s.Require().NoError(err)
	s.Equal(models.RequestStatusKYCVerified, updated.Status)
	s.Equal(models.StepComplete, updated.CurrentStep)
}

func (s *ServiceSuite) TestRejectionReason() {
	s.Run("details reason is used", func() {
		_, v := s.seed("", "ver-r1")
		_, err := s.service.Process(s.ctx, s.signed(`{"eventName":"step_completed","verificationId":"ver-r1","status":"rejected","details":{"reason":"Document expired"}}`))
		s.Require().NoError(err)

		got, err := s.verifications.FindByID(s.ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, got.Status)
		s.Equal("Document expired", got.FailureReason)
	})

	s.Run("review state falls back to the default reason", func() {
		_, v := s.seed("", "ver-r2")
		_, err := s.service.Process(s.ctx, s.signed(`{"eventName":"step_completed","verificationId":"ver-r2","identityStatus":"reviewNeeded"}`))
		s.Require().NoError(err)

		got, err := s.verifications.FindByID(s.ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, got.Status)
		s.Equal(models.DefaultFailureReason, got.FailureReason)
	})
}

func (s *ServiceSuite) TestRedeliveryConverges() {
	body := `{"eventName":"step_completed","verificationId":"ver-boot","status":"verified","metadata":{"msisdn":"+26772000000"}}`

	first, err := s.service.Process(s.ctx, s.signed(body))
	s.Require().NoError(err)
	second, err := s.service.Process(s.ctx, s.signed(body))
	s.Require().NoError(err)

	s.Equal(OutcomeProcessed, first.Outcome)
	s.Equal(first.VerificationRecordID, second.VerificationRecordID)
	s.Equal(first.Status, second.Status)

	n, err := s.requests.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	all, err := s.verifications.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Len(s.savedEvents(), 2)
}

func (s *ServiceSuite) TestAuditFailuresDoNotBlockProcessing() {
	s.Run("event store failure", func() {
		events := mocks.NewMockEventStore(s.ctrl)
		events.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("db down"))
		res, err := resolver.New(s.requests, s.verifications)
		s.Require().NoError(err)
		svc, err := New(events, s.fetcher, res, s.requests, s.verifications, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		s.Require().NoError(err)

		_, v := s.seed("", "ver-a1")
		result, err := svc.Process(s.ctx, Delivery{Body: []byte(`{"verificationId":"ver-a1","status":"verified"}`)})
		s.Require().NoError(err)
		s.False(result.EventSaved)
		s.Equal(OutcomeProcessed, result.Outcome)
		s.Equal(v.ID, result.VerificationRecordID)
	})

	s.Run("publisher failure", func() {
		publisher := mocks.NewMockEventPublisher(s.ctrl)
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
		svc := s.newService(WithPublisher(publisher))

		s.seed("", "ver-a2")
		result, err := svc.Process(s.ctx, Delivery{Body: []byte(`{"verificationId":"ver-a2"}`)})
		s.Require().NoError(err)
		s.True(result.EventSaved)
		s.Equal(OutcomeProcessed, result.Outcome)
	})
}
