package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"simkyc/pkg/platform/httputil"
	"simkyc/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Processor handles a webhook delivery.
type Processor interface {
	Process(ctx context.Context, d Delivery) (*Result, error)
}

// Handler exposes the MetaMap webhook endpoint.
type Handler struct {
	processor Processor
	logger    *slog.Logger
}

func NewHandler(processor Processor, logger *slog.Logger) *Handler {
	return &Handler{processor: processor, logger: logger}
}

// Register registers the webhook route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/metamap/webhook", h.handleWebhook)
}

type processedResponse struct {
	httputil.Envelope
	Message        string `json:"message"`
	EventName      string `json:"event_name"`
	VerificationID string `json:"verification_id,omitempty"`
	Status         string `json:"status,omitempty"`
	EventSaved     bool   `json:"event_saved"`
}

type rejectedResponse struct {
	httputil.Envelope
	Message    string `json:"message"`
	EventSaved bool   `json:"event_saved"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteFail(w, http.StatusBadRequest, "Unable to read request body.")
		return
	}

	res, err := h.processor.Process(ctx, Delivery{Body: body, Signature: SignatureFromHeaders(r.Header)})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to process webhook",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	switch res.Outcome {
	case OutcomeInvalidSignature:
		httputil.WriteJSON(w, http.StatusUnauthorized, rejectedResponse{Message: "Invalid signature", EventSaved: res.EventSaved})
	case OutcomeInvalidPayload:
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, rejectedResponse{Message: "Invalid JSON payload.", EventSaved: res.EventSaved})
	case OutcomeUnmatched:
		httputil.WriteJSON(w, http.StatusOK, processedResponse{
			Envelope:   httputil.OK(),
			Message:    "Webhook received, no matching KYC record found",
			EventName:  res.EventName,
			EventSaved: res.EventSaved,
		})
	default:
		httputil.WriteJSON(w, http.StatusOK, processedResponse{
			Envelope:       httputil.OK(),
			Message:        "MetaMap webhook processed",
			EventName:      res.EventName,
			VerificationID: strconv.FormatInt(res.VerificationRecordID, 10),
			Status:         string(res.Status),
			EventSaved:     res.EventSaved,
		})
	}
}
