// Package otp exposes the one-time-password endpoints. Delivery is not wired
// yet; both routes acknowledge the call.
package otp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"simkyc/pkg/platform/httputil"
)

type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/otp/send", stub("OTP send endpoint stub"))
	r.Post("/otp/verify", stub("OTP verify endpoint stub"))
}

type stubResponse struct {
	httputil.Envelope
	Message string `json:"message"`
}

func stub(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, stubResponse{Envelope: httputil.OK(), Message: message})
	}
}
