package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"simkyc/internal/payment/models"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/platform/httputil"
	"simkyc/pkg/requestcontext"
)

// Service defines the payment operations exposed over HTTP.
type Service interface {
	Record(ctx context.Context, t models.Transaction) (*models.Transaction, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the payment routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/payments/record", h.handleRecord)
}

type recordRequest struct {
	ServiceRequestID   *int64          `json:"service_request_id"`
	MSISDN             string          `json:"msisdn"`
	PaymentMethod      string          `json:"payment_method"`
	PaymentType        string          `json:"payment_type"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             string          `json:"status"`
	VoucherCode        string          `json:"voucher_code"`
	CustomerCareUserID string          `json:"customer_care_user_id"`
	ServiceType        string          `json:"service_type"`
	PlanName           string          `json:"plan_name"`
	Metadata           map[string]any  `json:"metadata"`
}

func (r *recordRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ServiceRequestID, validation.Min(int64(1))),
		validation.Field(&r.MSISDN, validation.Length(0, 20)),
		validation.Field(&r.PaymentMethod, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.PaymentType, validation.Length(0, 50)),
		validation.Field(&r.Currency, validation.Length(3, 3)),
		validation.Field(&r.Status, validation.In(models.StatusPending, models.StatusCompleted, models.StatusFailed, models.StatusRefunded)),
		validation.Field(&r.VoucherCode, validation.Length(0, 100)),
		validation.Field(&r.CustomerCareUserID, validation.Length(0, 100)),
		validation.Field(&r.ServiceType, validation.Length(0, 50)),
		validation.Field(&r.PlanName, validation.Length(0, 100)),
	)
}

// PaymentView is the JSON shape of a payment.
type PaymentView struct {
	ID                 int64          `json:"id"`
	ServiceRequestID   *int64         `json:"service_request_id,omitempty"`
	MSISDN             *string        `json:"msisdn"`
	PaymentMethod      string         `json:"payment_method"`
	PaymentType        *string        `json:"payment_type"`
	Amount             string         `json:"amount"`
	Currency           string         `json:"currency"`
	Status             string         `json:"status"`
	VoucherCode        string         `json:"voucher_code,omitempty"`
	CustomerCareUserID string         `json:"customer_care_user_id,omitempty"`
	ServiceType        *string        `json:"service_type"`
	PlanName           *string        `json:"plan_name"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// NewPaymentView renders t. Amounts keep two decimals.
func NewPaymentView(t *models.Transaction) PaymentView {
	return PaymentView{
		ID:                 t.ID,
		ServiceRequestID:   t.ServiceRequestID,
		MSISDN:             optional(t.MSISDN),
		PaymentMethod:      t.PaymentMethod,
		PaymentType:        optional(t.PaymentType),
		Amount:             t.Amount.StringFixed(2),
		Currency:           t.Currency,
		Status:             t.Status,
		VoucherCode:        t.VoucherCode,
		CustomerCareUserID: t.CustomerCareUserID,
		ServiceType:        optional(t.ServiceType),
		PlanName:           optional(t.PlanName),
		Metadata:           t.Metadata,
		CreatedAt:          t.CreatedAt,
	}
}

type recordResponse struct {
	httputil.Envelope
	Payment PaymentView `json:"payment"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[recordRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Record(ctx, models.Transaction{
		ServiceRequestID:   req.ServiceRequestID,
		MSISDN:             req.MSISDN,
		PaymentMethod:      req.PaymentMethod,
		PaymentType:        req.PaymentType,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Status:             req.Status,
		VoucherCode:        req.VoucherCode,
		CustomerCareUserID: req.CustomerCareUserID,
		ServiceType:        req.ServiceType,
		PlanName:           req.PlanName,
		Metadata:           req.Metadata,
	})
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to record payment", "request_id", requestcontext.RequestID(ctx), "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, recordResponse{Envelope: httputil.OK(), Payment: NewPaymentView(t)})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
