package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses. Only completed payments count as revenue.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

const DefaultCurrency = "BWP"

// Transaction is one recorded payment.
type Transaction struct {
	ID                 int64
	ServiceRequestID   *int64
	MSISDN             string
	PaymentMethod      string
	PaymentType        string
	Amount             decimal.Decimal
	Currency           string
	Status             string
	VoucherCode        string
	CustomerCareUserID string
	ServiceType        string
	PlanName           string
	Metadata           map[string]any
	UserAgent          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
