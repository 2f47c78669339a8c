package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"simkyc/internal/admin/models"
	paymentmodels "simkyc/internal/payment/models"
	"simkyc/pkg/platform/httputil"
	"simkyc/pkg/requestcontext"
)

// Service defines the admin reports exposed over HTTP.
type Service interface {
	Dashboard(ctx context.Context) (*models.Dashboard, error)
	Payments(ctx context.Context) ([]*paymentmodels.Transaction, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the admin routes. Callers wrap r with the admin token
// middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/dashboard", h.handleDashboard)
	r.Get("/admin/payments", h.handlePayments)
}

type summaryResponse struct {
	TotalRequests     int     `json:"total_requests"`
	CompletedRequests int     `json:"completed_requests"`
	PendingKYC        int     `json:"pending_kyc"`
	TotalRevenue      float64 `json:"total_revenue"`
}

type dashboardStats struct {
	Stats models.RecordStats `json:"stats"`
}

type dashboardResponse struct {
	httputil.Envelope
	Stats          summaryResponse        `json:"stats"`
	Dashboard      dashboardStats         `json:"dashboard"`
	Records        []models.KYCRecord     `json:"records"`
	KYCRecords     []models.KYCRecord     `json:"kyc_records"`
	RecentRequests []models.RecentRequest `json:"recent_requests"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.service.Dashboard(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build dashboard", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dashboardResponse{
		Envelope: httputil.OK(),
		Stats: summaryResponse{
			TotalRequests:     d.Summary.TotalRequests,
			CompletedRequests: d.Summary.CompletedRequests,
			PendingKYC:        d.Summary.PendingKYC,
			TotalRevenue:      d.Summary.TotalRevenue.InexactFloat64(),
		},
		Dashboard:      dashboardStats{Stats: d.Stats},
		Records:        d.Records,
		KYCRecords:     d.Records,
		RecentRequests: d.RecentRequests,
	})
}

type paymentRow struct {
	ID            int64     `json:"id"`
	MSISDN        *string   `json:"msisdn"`
	PaymentMethod string    `json:"payment_method"`
	PaymentType   *string   `json:"payment_type"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	ServiceType   *string   `json:"service_type"`
	PlanName      *string   `json:"plan_name"`
	CreatedAt     time.Time `json:"created_at"`
}

type paymentsResponse struct {
	httputil.Envelope
	Payments []paymentRow `json:"payments"`
	Total    int          `json:"total"`
}

func (h *Handler) handlePayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.service.Payments(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list payments", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	rows := make([]paymentRow, 0, len(list))
	for _, t := range list {
		rows = append(rows, paymentRow{
			ID:            t.ID,
			MSISDN:        optional(t.MSISDN),
			PaymentMethod: t.PaymentMethod,
			PaymentType:   optional(t.PaymentType),
			Amount:        t.Amount.StringFixed(2),
			Currency:      t.Currency,
			Status:        t.Status,
			ServiceType:   optional(t.ServiceType),
			PlanName:      optional(t.PlanName),
			CreatedAt:     t.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, paymentsResponse{Envelope: httputil.OK(), Payments: rows, Total: len(rows)})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
