// Package handler exposes the flow step endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"simkyc/internal/flow/models"
	kycmodels "simkyc/internal/kyc/models"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/platform/httputil"
	"simkyc/pkg/requestcontext"
)

// Service defines the flow operations exposed over HTTP.
type Service interface {
	StartESIM(ctx context.Context) (*kycmodels.ServiceRequest, error)
	StartSIMSwap(ctx context.Context) (*kycmodels.ServiceRequest, error)
	StartCompliance(ctx context.Context) (*kycmodels.ServiceRequest, error)
	SelectNumber(ctx context.Context, id, raw string) (*kycmodels.ServiceRequest, error)
	VerifySwapNumber(ctx context.Context, id, raw string) (*kycmodels.ServiceRequest, error)
	AcceptTerms(ctx context.Context, id string, accepted bool) (*kycmodels.ServiceRequest, error)
	VerifyNumber(ctx context.Context, id, raw string) (*kycmodels.ServiceRequest, error)
	Register(ctx context.Context, id string, profile models.RegistrationProfile) (*kycmodels.ServiceRequest, error)
	Profile(ctx context.Context, id string) (*models.RegistrationProfile, error)
	StartKYC(ctx context.Context, t kycmodels.RequestType, id string, in models.KYCStart) (*kycmodels.ServiceRequest, *kycmodels.Verification, error)
	KYCStatus(ctx context.Context, t kycmodels.RequestType, id string) (*models.KYCStatus, error)
	ComplianceStatus(ctx context.Context, id string) (*models.KYCStatus, error)
	Complete(ctx context.Context, id string, verified bool, kycVerificationID *int64) (*kycmodels.ServiceRequest, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the eSIM, SIM-swap and KYC-compliance routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/esim", h.registerESIM)
	r.Route("/simswap", h.registerSIMSwap)
	r.Route("/kyc-compliance", h.registerCompliance)
}

type stepResponse struct {
	httputil.Envelope
	Message     string `json:"message,omitempty"`
	RequestID   string `json:"request_id"`
	Status      string `json:"status,omitempty"`
	CurrentStep string `json:"current_step,omitempty"`
	MSISDN      string `json:"msisdn,omitempty"`
}

func newStepResponse(sr *kycmodels.ServiceRequest) stepResponse {
	return stepResponse{
		Envelope:    httputil.OK(),
		RequestID:   formatID(sr.ID),
		Status:      sr.Status,
		CurrentStep: sr.CurrentStep,
	}
}

type kycStartResponse struct {
	httputil.Envelope
	RequestID         string `json:"request_id"`
	KYCVerificationID string `json:"kyc_verification_id"`
	Status            string `json:"status"`
}

func (h *Handler) startKYC(t kycmodels.RequestType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		req, err := httputil.DecodeAndValidate[kycStartRequest](r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		sr, v, err := h.service.StartKYC(ctx, t, chi.URLParam(r, "id"), req.toModel())
		if err != nil {
			h.fail(ctx, w, "failed to start kyc", err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, kycStartResponse{
			Envelope:          httputil.OK(),
			RequestID:         formatID(sr.ID),
			KYCVerificationID: formatID(v.ID),
			Status:            string(v.Status),
		})
	}
}

// stub acknowledges a step that has no server-side effect yet.
func (h *Handler) stub(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, stepResponse{
		Envelope:  httputil.OK(),
		RequestID: chi.URLParam(r, "id"),
	})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
