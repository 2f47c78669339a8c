package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"simkyc/internal/flow/models"
	kycmodels "simkyc/internal/kyc/models"
	"simkyc/pkg/platform/httputil"
)

func (h *Handler) registerESIM(r chi.Router) {
	r.Post("/start", h.handleESIMStart)
	r.Get("/{id}/numbers", h.handleNumbers)
	r.Post("/{id}/number", h.handleSelectNumber)
	r.Post("/{id}/kyc/start", h.startKYC(kycmodels.RequestTypeESIMPurchase))
	r.Get("/{id}/kyc/status", h.kycStatus(kycmodels.RequestTypeESIMPurchase))
	for _, step := range []string{"terms", "payment", "registration", "confirm-kyc", "activate"} {
		r.Post("/{id}/"+step, h.stub)
	}
}

func (h *Handler) handleESIMStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sr, err := h.service.StartESIM(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to start esim", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newStepResponse(sr))
}

type numbersResponse struct {
	httputil.Envelope
	RequestID string   `json:"request_id"`
	Numbers   []string `json:"numbers"`
}

func (h *Handler) handleNumbers(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, numbersResponse{
		Envelope:  httputil.OK(),
		RequestID: chi.URLParam(r, "id"),
		Numbers:   models.AvailableNumbers,
	})
}

func (h *Handler) handleSelectNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[numberRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sr, err := h.service.SelectNumber(ctx, chi.URLParam(r, "id"), req.MSISDN)
	if err != nil {
		h.fail(ctx, w, "failed to select number", err)
		return
	}
	resp := newStepResponse(sr)
	resp.MSISDN = sr.MSISDN
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type kycStatusResponse struct {
	httputil.Envelope
	RequestID         string  `json:"request_id"`
	Status            string  `json:"status"`
	KYCVerificationID *string `json:"kyc_verification_id"`
	VerificationID    *string `json:"verification_id"`
	IdentityID        *string `json:"identity_id"`
}

// kycStatus echoes the path id, which may be a provider id rather than a
// service request id.
func (h *Handler) kycStatus(t kycmodels.RequestType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		st, err := h.service.KYCStatus(ctx, t, id)
		if err != nil {
			h.fail(ctx, w, "failed to load kyc status", err)
			return
		}
		resp := kycStatusResponse{
			Envelope:  httputil.OK(),
			RequestID: id,
			Status:    string(st.Status),
		}
		if v := st.Verification; v != nil {
			resp.KYCVerificationID = optional(formatID(v.ID))
			resp.VerificationID = optional(v.VerificationID)
			resp.IdentityID = optional(v.IdentityID)
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
