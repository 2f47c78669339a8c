package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	kycmodels "simkyc/internal/kyc/models"
	"simkyc/pkg/platform/httputil"
)

func (h *Handler) registerSIMSwap(r chi.Router) {
	r.Post("/start", h.handleSIMSwapStart)
	r.Post("/{id}/number", h.handleSwapNumber)
	r.Post("/{id}/kyc/start", h.startKYC(kycmodels.RequestTypeSIMSwap))
	r.Get("/{id}/kyc/status", h.kycStatus(kycmodels.RequestTypeSIMSwap))
	for _, step := range []string{"otp/send", "otp/verify", "payment", "sim-type", "esim/finalize", "shop/select"} {
		r.Post("/{id}/"+step, h.stub)
	}
}

func (h *Handler) handleSIMSwapStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sr, err := h.service.StartSIMSwap(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to start sim swap", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newStepResponse(sr))
}

func (h *Handler) handleSwapNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[numberRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sr, err := h.service.VerifySwapNumber(ctx, chi.URLParam(r, "id"), req.MSISDN)
	if err != nil {
		h.fail(ctx, w, "failed to verify sim swap number", err)
		return
	}
	resp := newStepResponse(sr)
	resp.MSISDN = sr.MSISDN
	httputil.WriteJSON(w, http.StatusOK, resp)
}
