// Package clientconfig serves the public MetaMap SDK settings the mobile
// client needs before it opens a verification session.
package clientconfig

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"simkyc/internal/kyc/models"
	"simkyc/pkg/platform/httputil"
	"simkyc/pkg/requestcontext"
)

// Config holds the client id and the flow per document type.
type Config struct {
	ClientID         string
	CitizenFlowID    string
	NonCitizenFlowID string
}

// FlowFor returns the flow for a document type: citizen for omang, non-citizen otherwise.
func (c Config) FlowFor(documentType models.DocumentType) string {
	if documentType == models.DocumentOmang {
		return c.CitizenFlowID
	}
	return c.NonCitizenFlowID
}

type Handler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Handler {
	return &Handler{cfg: cfg, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/metamap/config", h.handleConfig)
}

type configRequest struct {
	DocumentType models.DocumentType `json:"document_type"`
}

func (r *configRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.DocumentType, validation.Required, validation.In(models.DocumentOmang, models.DocumentPassport)),
	)
}

type configResponse struct {
	httputil.Envelope
	ClientID string `json:"client_id"`
	FlowID   string `json:"flow_id"`
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[configRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.cfg.ClientID == "" {
		h.logger.ErrorContext(ctx, "metamap client id is not configured", "request_id", requestcontext.RequestID(ctx))
		httputil.WriteFail(w, http.StatusInternalServerError, "MetaMap client is not configured.")
		return
	}
	flowID := h.cfg.FlowFor(req.DocumentType)
	if flowID == "" {
		h.logger.ErrorContext(ctx, "metamap flow is not configured",
			"request_id", requestcontext.RequestID(ctx),
			"document_type", string(req.DocumentType),
		)
		httputil.WriteFail(w, http.StatusInternalServerError, "MetaMap flow is not configured for this document type.")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, configResponse{Envelope: httputil.OK(), ClientID: h.cfg.ClientID, FlowID: flowID})
}
