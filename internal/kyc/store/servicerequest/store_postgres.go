package servicerequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"simkyc/internal/kyc/models"
	"simkyc/pkg/platform/sentinel"
	txcontext "simkyc/pkg/platform/tx"
	"simkyc/pkg/requestcontext"
)

// PostgresStore persists service requests in the service_requests table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

const selectColumns = `id, request_type, msisdn, status, current_step, otp_skipped, metadata, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, req *models.ServiceRequest) error {
	meta, err := json.Marshal(req.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	now := requestcontext.Now(ctx)
	query := `
		INSERT INTO service_requests (request_type, msisdn, status, current_step, otp_skipped, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at, updated_at
	`
	err = s.q(ctx).QueryRow(ctx, query,
		string(req.RequestType),
		nullable(req.MSISDN),
		req.Status,
		nullable(req.CurrentStep),
		req.OTPSkipped,
		meta,
		now,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert service request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, req *models.ServiceRequest) error {
	meta, err := json.Marshal(req.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := `
		UPDATE service_requests
		SET msisdn = $2, status = $3, current_step = $4, otp_skipped = $5, metadata = $6, updated_at = $7
		WHERE id = $1
		RETURNING updated_at
	`
	err = s.q(ctx).QueryRow(ctx, query,
		req.ID,
		nullable(req.MSISDN),
		req.Status,
		nullable(req.CurrentStep),
		req.OTPSkipped,
		meta,
		requestcontext.Now(ctx),
	).Scan(&req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update service request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.ServiceRequest, error) {
	query := `SELECT ` + selectColumns + ` FROM service_requests WHERE id = $1`
	return s.one(ctx, query, id)
}

func (s *PostgresStore) FindLatestByMSISDN(ctx context.Context, msisdn string) (*models.ServiceRequest, error) {
	query := `SELECT ` + selectColumns + ` FROM service_requests WHERE msisdn = $1 ORDER BY id DESC LIMIT 1`
	return s.one(ctx, query, msisdn)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*models.ServiceRequest, error) {
	query := `SELECT ` + selectColumns + ` FROM service_requests ORDER BY id DESC LIMIT $1`
	rows, err := s.q(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query service requests: %w", err)
	}
	defer rows.Close()

	var out []*models.ServiceRequest
	for rows.Next() {
		req, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service_requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count service requests: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := s.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service_requests WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count service requests by status: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) TypesByID(ctx context.Context, ids []int64) (map[int64]models.RequestType, error) {
	out := make(map[int64]models.RequestType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.q(ctx).Query(ctx, `SELECT id, request_type FROM service_requests WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query request types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			typ string
		)
		if err := rows.Scan(&id, &typ); err != nil {
			return nil, fmt.Errorf("scan request type: %w", err)
		}
		out[id] = models.RequestType(typ)
	}
	return out, rows.Err()
}

func (s *PostgresStore) one(ctx context.Context, query string, args ...any) (*models.ServiceRequest, error) {
	req, err := scan(s.q(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return req, err
}

func scan(row pgx.Row) (*models.ServiceRequest, error) {
	var (
		req         models.ServiceRequest
		requestType string
		msisdn      *string
		currentStep *string
		meta        []byte
	)
	err := row.Scan(&req.ID, &requestType, &msisdn, &req.Status, &currentStep, &req.OTPSkipped, &meta, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan service request: %w", err)
	}
	req.RequestType = models.RequestType(requestType)
	if msisdn != nil {
		req.MSISDN = *msisdn
	}
	if currentStep != nil {
		req.CurrentStep = *currentStep
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &req.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &req, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
