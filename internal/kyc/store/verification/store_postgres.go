package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	"simkyc/internal/kyc/ports"
	"simkyc/pkg/platform/sentinel"
	txcontext "simkyc/pkg/platform/tx"
	"simkyc/pkg/requestcontext"
)

// PostgresStore persists verifications in the kyc_verifications table.
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

const selectColumns = `id, service_request_id, provider, session_id, verification_id, identity_id, status,
	document_type, full_name, first_name, surname, date_of_birth, sex, country, document_number,
	expiry_date, failure_reason, selfie_url, document_photo_urls, raw_response, created_at, updated_at`

// correlationColumns whitelists the columns FindLatestByKey may filter on.
var correlationColumns = map[ports.CorrelationKey]string{
	ports.KeyVerificationID: "verification_id",
	ports.KeyIdentityID:     "identity_id",
	ports.KeySessionID:      "session_id",
}

func (s *PostgresStore) Create(ctx context.Context, v *models.Verification) error {
	args, err := writeArgs(v)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	query := `
		INSERT INTO kyc_verifications (
			service_request_id, provider, session_id, verification_id, identity_id, status,
			document_type, full_name, first_name, surname, date_of_birth, sex, country,
			document_number, expiry_date, failure_reason, selfie_url, document_photo_urls,
			raw_response, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
		RETURNING id, created_at, updated_at
	`
	err = s.q(ctx).QueryRow(ctx, query, append(args, now)...).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, v *models.Verification) error {
	args, err := writeArgs(v)
	if err != nil {
		return err
	}
	query := `
		UPDATE kyc_verifications SET
			service_request_id = $1, provider = $2, session_id = $3, verification_id = $4,
			identity_id = $5, status = $6, document_type = $7, full_name = $8, first_name = $9,
			surname = $10, date_of_birth = $11, sex = $12, country = $13, document_number = $14,
			expiry_date = $15, failure_reason = $16, selfie_url = $17, document_photo_urls = $18,
			raw_response = $19, updated_at = $20
		WHERE id = $21
		RETURNING updated_at
	`
	args = append(args, requestcontext.Now(ctx), v.ID)
	err = s.q(ctx).QueryRow(ctx, query, args...).Scan(&v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.Verification, error) {
	return s.one(ctx, `SELECT `+selectColumns+` FROM kyc_verifications WHERE id = $1`, id)
}

func (s *PostgresStore) FindLatestByKey(ctx context.Context, key ports.CorrelationKey, value string) (*models.Verification, error) {
	column, ok := correlationColumns[key]
	if !ok {
		return nil, fmt.Errorf("unknown correlation key %q", key)
	}
	if value == "" {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + selectColumns + ` FROM kyc_verifications WHERE ` + column + ` = $1 ORDER BY id DESC LIMIT 1`
	return s.one(ctx, query, value)
}

func (s *PostgresStore) FindLatestByAnyKey(ctx context.Context, value string) (*models.Verification, error) {
	if value == "" {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + selectColumns + ` FROM kyc_verifications
		WHERE verification_id = $1 OR identity_id = $1 OR session_id = $1
		ORDER BY id DESC LIMIT 1`
	return s.one(ctx, query, value)
}

func (s *PostgresStore) FindLatestForRequest(ctx context.Context, serviceRequestID int64) (*models.Verification, error) {
	query := `SELECT ` + selectColumns + ` FROM kyc_verifications WHERE service_request_id = $1 ORDER BY id DESC LIMIT 1`
	return s.one(ctx, query, serviceRequestID)
}

func (s *PostgresStore) ListForRequest(ctx context.Context, serviceRequestID int64) ([]*models.Verification, error) {
	query := `SELECT ` + selectColumns + ` FROM kyc_verifications WHERE service_request_id = $1 ORDER BY id DESC`
	return s.many(ctx, query, serviceRequestID)
}

func (s *PostgresStore) ListStalePending(ctx context.Context, updatedBefore time.Time, afterID int64, limit int) ([]*models.Verification, error) {
	query := `SELECT ` + selectColumns + ` FROM kyc_verifications
		WHERE status = $1 AND verification_id IS NOT NULL AND updated_at < $2 AND id > $3
		ORDER BY id ASC LIMIT $4`
	return s.many(ctx, query, string(models.StatusPending), updatedBefore, afterID, limit)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Verification, error) {
	return s.many(ctx, `SELECT `+selectColumns+` FROM kyc_verifications ORDER BY id DESC`)
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status models.Status) (int, error) {
	var n int
	err := s.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM kyc_verifications WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count verifications: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) one(ctx context.Context, query string, args ...any) (*models.Verification, error) {
	v, err := scan(s.q(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return v, err
}

func (s *PostgresStore) many(ctx context.Context, query string, args ...any) ([]*models.Verification, error) {
	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Verification
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

// writeArgs returns the 19 column values shared by insert and update.
func writeArgs(v *models.Verification) ([]any, error) {
	var photos, raw []byte
	var err error
	if len(v.DocumentPhotos) > 0 {
		if photos, err = json.Marshal(v.DocumentPhotos); err != nil {
			return nil, fmt.Errorf("marshal document photos: %w", err)
		}
	}
	if v.RawResponse != nil {
		if raw, err = json.Marshal(v.RawResponse); err != nil {
			return nil, fmt.Errorf("marshal raw response: %w", err)
		}
	}
	dob, err := datePtr(v.Person.DateOfBirth)
	if err != nil {
		return nil, err
	}
	expiry, err := datePtr(v.Person.ExpiryDate)
	if err != nil {
		return nil, err
	}
	provider := v.Provider
	if provider == "" {
		provider = models.ProviderMetaMap
	}
	return []any{
		v.ServiceRequestID,
		provider,
		nullable(v.SessionID),
		nullable(v.VerificationID),
		nullable(v.IdentityID),
		string(v.Status),
		nullable(string(v.DocumentType)),
		nullable(v.Person.FullName),
		nullable(v.Person.FirstName),
		nullable(v.Person.Surname),
		dob,
		nullable(v.Person.Sex),
		nullable(v.Person.Country),
		nullable(v.Person.DocumentNumber),
		expiry,
		nullable(v.FailureReason),
		nullable(v.SelfieURL),
		photos,
		raw,
	}, nil
}

func scan(row pgx.Row) (*models.Verification, error) {
	var (
		v                                                       models.Verification
		sessionID, verificationID, identityID, documentType     *string
		fullName, firstName, surname, sex, country, documentNum *string
		failureReason, selfieURL                                *string
		status                                                  string
		dob, expiry                                             *time.Time
		photos, raw                                             []byte
	)
	err := row.Scan(
		&v.ID, &v.ServiceRequestID, &v.Provider, &sessionID, &verificationID, &identityID, &status,
		&documentType, &fullName, &firstName, &surname, &dob, &sex, &country, &documentNum,
		&expiry, &failureReason, &selfieURL, &photos, &raw, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan verification: %w", err)
	}
	v.Status = models.Status(status)
	v.SessionID = deref(sessionID)
	v.VerificationID = deref(verificationID)
	v.IdentityID = deref(identityID)
	v.DocumentType = models.DocumentType(deref(documentType))
	v.Person = models.PersonRecord{
		FullName:       deref(fullName),
		FirstName:      deref(firstName),
		Surname:        deref(surname),
		DateOfBirth:    formatDate(dob),
		Sex:            deref(sex),
		Country:        deref(country),
		DocumentNumber: deref(documentNum),
		ExpiryDate:     formatDate(expiry),
	}
	v.FailureReason = deref(failureReason)
	v.SelfieURL = deref(selfieURL)
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &v.DocumentPhotos); err != nil {
			return nil, fmt.Errorf("decode document photos: %w", err)
		}
	}
	if len(raw) > 0 {
		var p payload.Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode raw response: %w", err)
		}
		v.RawResponse = p
	}
	return &v, nil
}

const dateLayout = "2006-01-02"

func datePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s, err)
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
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
