package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"simkyc/internal/subscriber/models"
	"simkyc/pkg/platform/sentinel"
	"simkyc/pkg/requestcontext"
)

// PostgresStore persists subscribers in the subscribers table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindAny(ctx context.Context, forms []string) (*models.Subscriber, error) {
	query := `
		SELECT id, msisdn, first_name, last_name, id_type, id_number, status, is_whitelisted, created_at, updated_at
		FROM subscribers WHERE msisdn = ANY($1)
		ORDER BY id LIMIT 1
	`
	var (
		sub                           models.Subscriber
		first, last, idType, idNumber *string
	)
	err := s.pool.QueryRow(ctx, query, forms).Scan(
		&sub.ID, &sub.MSISDN, &first, &last, &idType, &idNumber, &sub.Status, &sub.IsWhitelisted, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscriber: %w", err)
	}
	sub.FirstName, sub.LastName, sub.IDType, sub.IDNumber = deref(first), deref(last), deref(idType), deref(idNumber)
	return &sub, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}

// UpsertWhitelisted inserts missing numbers and whitelists existing ones in
// one statement. xmax = 0 distinguishes inserted rows from updated ones.
func (s *PostgresStore) UpsertWhitelisted(ctx context.Context, msisdns []string) ([]string, []string, error) {
	if len(msisdns) == 0 {
		return nil, nil, nil
	}
	query := `
		INSERT INTO subscribers (msisdn, is_whitelisted, created_at, updated_at)
		SELECT m, TRUE, $2, $2 FROM unnest($1::text[]) AS m
		ON CONFLICT (msisdn) DO UPDATE SET is_whitelisted = TRUE, updated_at = EXCLUDED.updated_at
		RETURNING msisdn, (xmax = 0) AS inserted
	`
	rows, err := s.pool.Query(ctx, query, msisdns, requestcontext.Now(ctx))
	if err != nil {
		return nil, nil, fmt.Errorf("upsert subscribers: %w", err)
	}
	defer rows.Close()

	status := make(map[string]bool, len(msisdns))
	for rows.Next() {
		var (
			m        string
			inserted bool
		)
		if err := rows.Scan(&m, &inserted); err != nil {
			return nil, nil, fmt.Errorf("scan upserted subscriber: %w", err)
		}
		status[m] = inserted
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("upsert subscribers: %w", err)
	}

	var inserted, updated []string
	for _, m := range msisdns {
		if status[m] {
			inserted = append(inserted, m)
		} else {
			updated = append(updated, m)
		}
	}
	return inserted, updated, nil
}

// Save inserts or replaces sub. Used for seeding.
func (s *PostgresStore) Save(ctx context.Context, sub *models.Subscriber) error {
	status := sub.Status
	if status == "" {
		status = "active"
	}
	query := `
		INSERT INTO subscribers (msisdn, first_name, last_name, id_type, id_number, status, is_whitelisted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (msisdn) DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, id_type = EXCLUDED.id_type,
			id_number = EXCLUDED.id_number, status = EXCLUDED.status, is_whitelisted = EXCLUDED.is_whitelisted,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		sub.MSISDN, nullable(sub.FirstName), nullable(sub.LastName), nullable(sub.IDType), nullable(sub.IDNumber),
		status, sub.IsWhitelisted, requestcontext.Now(ctx),
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save subscriber: %w", err)
	}
	sub.Status = status
	return nil
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
