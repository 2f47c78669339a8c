package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"simkyc/internal/flow/models"
	"simkyc/pkg/platform/sentinel"
	txcontext "simkyc/pkg/platform/tx"
	"simkyc/pkg/requestcontext"
)

// PostgresStore persists registration profiles in registration_profiles.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

func (s *PostgresStore) Upsert(ctx context.Context, p *models.RegistrationProfile) error {
	query := `
		INSERT INTO registration_profiles (
			service_request_id, plot_number, ward, village, city, postal_address,
			next_of_kin_name, next_of_kin_relation, next_of_kin_phone, email, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (service_request_id) DO UPDATE SET
			plot_number = EXCLUDED.plot_number, ward = EXCLUDED.ward, village = EXCLUDED.village,
			city = EXCLUDED.city, postal_address = EXCLUDED.postal_address,
			next_of_kin_name = EXCLUDED.next_of_kin_name, next_of_kin_relation = EXCLUDED.next_of_kin_relation,
			next_of_kin_phone = EXCLUDED.next_of_kin_phone, email = EXCLUDED.email,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	err := s.q(ctx).QueryRow(ctx, query,
		p.ServiceRequestID,
		nullable(p.PlotNumber),
		nullable(p.Ward),
		nullable(p.Village),
		nullable(p.City),
		nullable(p.PostalAddress),
		nullable(p.NextOfKinName),
		nullable(p.NextOfKinRelation),
		nullable(p.NextOfKinPhone),
		nullable(p.Email),
		requestcontext.Now(ctx),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert registration profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByRequest(ctx context.Context, serviceRequestID int64) (*models.RegistrationProfile, error) {
	query := `
		SELECT id, service_request_id, plot_number, ward, village, city, postal_address,
			next_of_kin_name, next_of_kin_relation, next_of_kin_phone, email, created_at, updated_at
		FROM registration_profiles WHERE service_request_id = $1
	`
	var (
		p                                                     models.RegistrationProfile
		plot, ward, village, city, postal, kin, rel, kinPhone *string
		email                                                 *string
	)
	err := s.q(ctx).QueryRow(ctx, query, serviceRequestID).Scan(
		&p.ID, &p.ServiceRequestID, &plot, &ward, &village, &city, &postal,
		&kin, &rel, &kinPhone, &email, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find registration profile: %w", err)
	}
	p.PlotNumber, p.Ward, p.Village, p.City = deref(plot), deref(ward), deref(village), deref(city)
	p.PostalAddress, p.NextOfKinName, p.NextOfKinRelation = deref(postal), deref(kin), deref(rel)
	p.NextOfKinPhone, p.Email = deref(kinPhone), deref(email)
	return &p, nil
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
