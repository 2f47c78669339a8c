package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"simkyc/internal/payment/models"
	"simkyc/pkg/requestcontext"
)

// PostgresStore persists payments in payment_transactions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, t *models.Transaction) error {
	var metadata []byte
	if len(t.Metadata) > 0 {
		encoded, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("encode payment metadata: %w", err)
		}
		metadata = encoded
	}
	query := `
		INSERT INTO payment_transactions (
			service_request_id, msisdn, payment_method, payment_type, amount, currency, status,
			voucher_code, customer_care_user_id, service_type, plan_name, metadata, user_agent,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING id, created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		t.ServiceRequestID,
		nullable(t.MSISDN),
		t.PaymentMethod,
		nullable(t.PaymentType),
		t.Amount.StringFixed(2),
		t.Currency,
		t.Status,
		nullable(t.VoucherCode),
		nullable(t.CustomerCareUserID),
		nullable(t.ServiceType),
		nullable(t.PlanName),
		metadata,
		nullable(t.UserAgent),
		requestcontext.Now(ctx),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLatest(ctx context.Context, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, service_request_id, msisdn, payment_method, payment_type, amount::text, currency, status,
			voucher_code, customer_care_user_id, service_type, plan_name, metadata, user_agent,
			created_at, updated_at
		FROM payment_transactions
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var (
			t                                      models.Transaction
			amount                                 string
			msisdn, paymentType, voucher, careUser *string
			serviceType, planName, userAgent       *string
			metadata                               []byte
		)
		if err := rows.Scan(
			&t.ID, &t.ServiceRequestID, &msisdn, &t.PaymentMethod, &paymentType, &amount, &t.Currency, &t.Status,
			&voucher, &careUser, &serviceType, &planName, &metadata, &userAgent,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse payment amount: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("decode payment metadata: %w", err)
			}
		}
		t.MSISDN, t.PaymentType, t.VoucherCode, t.CustomerCareUserID = deref(msisdn), deref(paymentType), deref(voucher), deref(careUser)
		t.ServiceType, t.PlanName, t.UserAgent = deref(serviceType), deref(planName), deref(userAgent)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment transactions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SumByStatus(ctx context.Context, status string) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM payment_transactions WHERE status = $1`, status,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum payment transactions: %w", err)
	}
	return decimal.NewFromString(total)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
