package compliance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	adminhandler "simkyc/internal/admin/handler"
	adminservice "simkyc/internal/admin/service"
	"simkyc/internal/audit"
	auditstore "simkyc/internal/audit/store"
	flowhandler "simkyc/internal/flow/handler"
	flowmodels "simkyc/internal/flow/models"
	flowservice "simkyc/internal/flow/service"
	flowstore "simkyc/internal/flow/store"
	httpapi "simkyc/internal/http"
	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	portmocks "simkyc/internal/kyc/ports/mocks"
	"simkyc/internal/kyc/refresh"
	"simkyc/internal/kyc/resolver"
	"simkyc/internal/kyc/store/servicerequest"
	"simkyc/internal/kyc/store/verification"
	"simkyc/internal/metamap/webhook"
	webhookstore "simkyc/internal/metamap/webhook/store"
	paymentservice "simkyc/internal/payment/service"
	paymentstore "simkyc/internal/payment/store"
	subscriberservice "simkyc/internal/subscriber/service"
	subscriberstore "simkyc/internal/subscriber/store"
	"simkyc/pkg/testutil"
)

const (
	webhookSecret = "whsec-e2e"
	adminToken    = "admin-e2e"
)

type world struct {
	router   http.Handler
	requests *servicerequest.InMemoryStore
	audit    *auditstore.InMemoryStore
}

func newWorld(t *testing.T, fetcher *portmocks.MockVerificationFetcher) *world {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	requests := servicerequest.NewInMemory()
	verifications := verification.NewInMemory()
	audits := auditstore.NewInMemory()

	subscribers := subscriberstore.NewInMemory()
	_, _, err := subscribers.UpsertWhitelisted(context.Background(), []string{"71234567"})
	require.NoError(t, err)
	subs, err := subscriberservice.New(subscribers, subscriberservice.WithLogger(logger))
	require.NoError(t, err)

	res, err := resolver.New(requests, verifications, resolver.WithLogger(logger))
	require.NoError(t, err)
	refresher, err := refresh.New(requests, verifications, fetcher, refresh.WithLogger(logger))
	require.NoError(t, err)
	webhooks, err := webhook.New(webhookstore.NewInMemory(), fetcher, res, requests, verifications,
		webhook.WithLogger(logger), webhook.WithSecret(webhookSecret))
	require.NoError(t, err)

	publisher, err := audit.NewPublisher(audits, audit.WithLogger(logger))
	require.NoError(t, err)
	flows, err := flowservice.New(requests, verifications, flowstore.NewInMemory(), subs, refresher,
		flowservice.WithLogger(logger), flowservice.WithAudit(publisher))
	require.NoError(t, err)
	payments, err := paymentservice.New(paymentstore.NewInMemory(), requests)
	require.NoError(t, err)
	reports, err := adminservice.New(requests, verifications, payments, adminservice.WithLogger(logger))
	require.NoError(t, err)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:     logger,
		AdminToken: adminToken,
		Public: []httpapi.Registrar{
			webhook.NewHandler(webhooks, logger),
			flowhandler.New(flows, logger),
		},
		Admin: []httpapi.Registrar{adminhandler.New(reports, logger)},
	})
	return &world{router: router, requests: requests, audit: audits}
}

func TestComplianceFlowReconciledByWebhook(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := portmocks.NewMockVerificationFetcher(ctrl)
	fetcher.EXPECT().GetVerification(gomock.Any(), "ver-e2e").Return(payload.Payload{
		"id":       "ver-e2e",
		"identity": map[string]any{"id": "idn-e2e", "status": "verified"},
		"documents": []any{map[string]any{
			"fields": map[string]any{
				"firstName": map[string]any{"value": "Kabo"},
				"surname":   map[string]any{"value": "Molefe"},
			},
		}},
	}).AnyTimes()
	w := newWorld(t, fetcher)

	var requestID string

	testutil.Given(t, "a compliance request for a whitelisted number", func(t *testing.T) {
		body := testutil.AssertSuccess(t, testutil.DoRequest(w.router, testutil.NewJSONRequest(t, http.MethodPost, "/kyc-compliance/start", nil)), http.StatusCreated)
		requestID = body["request_id"].(string)
		require.NotEmpty(t, requestID)

		body = testutil.AssertSuccess(t, testutil.DoRequest(w.router,
			testutil.NewJSONRequest(t, http.MethodPost, "/kyc-compliance/"+requestID+"/number", map[string]string{"msisdn": "+267 7123 4567"})), http.StatusOK)
		assert.Equal(t, flowmodels.StepRegistration, body["current_step"])
		assert.Equal(t, "71234567", body["msisdn"])

		body = testutil.AssertSuccess(t, testutil.DoRequest(w.router,
			testutil.NewJSONRequest(t, http.MethodPost, "/kyc-compliance/"+requestID+"/registration", map[string]string{
				"city":  "Gaborone",
				"email": "kabo@example.com",
			})), http.StatusOK)
		assert.Equal(t, models.StepVerification, body["current_step"])
	})

	testutil.When(t, "the client starts KYC and the provider reports completion", func(t *testing.T) {
		body := testutil.AssertSuccess(t, testutil.DoRequest(w.router,
			testutil.NewJSONRequest(t, http.MethodPost, "/kyc-compliance/"+requestID+"/kyc/start", map[string]string{
				"document_type":   "omang",
				"verification_id": "ver-e2e",
			})), http.StatusCreated)
		assert.Equal(t, string(models.StatusPending), body["status"])

		delivery := `{"eventName":"verification_completed","resource":"https://api.getmati.com/v2/verifications/ver-e2e"}`
		req := testutil.NewRawRequest(http.MethodPost, "/metamap/webhook", delivery)
		req.Header.Set("X-Signature", "sha256="+webhook.Sign(webhookSecret, []byte(delivery)))
		body = testutil.AssertSuccess(t, testutil.DoRequest(w.router, req), http.StatusOK)
		assert.Equal(t, "MetaMap webhook processed", body["message"])
		assert.Equal(t, string(models.StatusVerified), body["status"])
	})

	testutil.Then(t, "the request is verified and reported", func(t *testing.T) {
		body := testutil.AssertSuccess(t, testutil.DoRequest(w.router,
			testutil.NewJSONRequest(t, http.MethodGet, "/kyc-compliance/"+requestID+"/status", nil)), http.StatusOK)
		assert.Equal(t, models.RequestStatusKYCVerified, body["request_status"])
		assert.Equal(t, models.StepComplete, body["current_step"])
		ver := body["verification"].(map[string]any)
		assert.Equal(t, "idn-e2e", ver["identity_id"])

		req := testutil.NewJSONRequest(t, http.MethodGet, "/admin/dashboard", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		body = testutil.AssertSuccess(t, testutil.DoRequest(w.router, req), http.StatusOK)
		records := body["records"].([]any)
		require.Len(t, records, 1)
		rec := records[0].(map[string]any)
		assert.Equal(t, "verified", rec["status"])
		assert.Equal(t, "Kabo", rec["first_name"])
		assert.Equal(t, "kyc_compliance", rec["service_type"])

		var actions []audit.Action
		for _, ev := range w.audit.All() {
			actions = append(actions, ev.Action)
			assert.NotEmpty(t, ev.RequestID, "audit rows carry the request id")
		}
		assert.Equal(t, []audit.Action{
			audit.ActionComplianceStarted,
			audit.ActionComplianceNumber,
			audit.ActionComplianceRegistered,
			audit.ActionComplianceKYCStarted,
		}, actions)
	})
}

func TestWebhookWithBadSignatureLeavesRequestUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	w := newWorld(t, portmocks.NewMockVerificationFetcher(ctrl))

	body := testutil.AssertSuccess(t, testutil.DoRequest(w.router, testutil.NewJSONRequest(t, http.MethodPost, "/kyc-compliance/start", nil)), http.StatusCreated)
	requestID := body["request_id"].(string)

	req := testutil.NewRawRequest(http.MethodPost, "/metamap/webhook", `{"verificationId":"ver-x","status":"verified"}`)
	req.Header.Set("X-Signature", "sha256=00")
	testutil.AssertFail(t, testutil.DoRequest(w.router, req), http.StatusUnauthorized, "Invalid signature")

	status := testutil.AssertSuccess(t, testutil.DoRequest(w.router,
		testutil.NewJSONRequest(t, http.MethodGet, "/kyc-compliance/"+requestID+"/status", nil)), http.StatusOK)
	assert.Nil(t, status["verification"])
	assert.Equal(t, flowmodels.StatusStarted, status["request_status"])
}
