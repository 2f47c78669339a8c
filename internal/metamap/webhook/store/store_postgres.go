package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	"simkyc/pkg/requestcontext"
)

// PostgresStore writes webhook events to kyc_webhook_events. Events are
// write-once; there is no update path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, ev *models.WebhookEvent) error {
	meta, err := jsonOrNil(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal webhook metadata: %w", err)
	}
	body, err := jsonOrNil(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	query := `
		INSERT INTO kyc_webhook_events (
			provider, event_name, flow_id, verification_id, identity_id, resource, record_id,
			service_request_id, signature, signature_valid, event_timestamp, metadata, payload,
			raw_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		ev.Provider,
		nullString(ev.EventName),
		nullString(ev.FlowID),
		nullString(ev.VerificationID),
		nullString(ev.IdentityID),
		nullString(ev.Resource),
		nullString(ev.RecordID),
		ev.ServiceRequestID,
		nullString(ev.Signature),
		ev.SignatureValid,
		ev.EventTimestamp,
		meta,
		body,
		ev.RawPayload,
		requestcontext.Now(ctx),
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// All returns the stored events oldest first.
func (s *PostgresStore) All(ctx context.Context) ([]models.WebhookEvent, error) {
	query := `
		SELECT id, provider, event_name, flow_id, verification_id, identity_id, resource, record_id,
			service_request_id, signature, signature_valid, event_timestamp, metadata, payload,
			raw_payload, created_at
		FROM kyc_webhook_events ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query webhook events: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookEvent
	for rows.Next() {
		var (
			ev                                                      models.WebhookEvent
			eventName, flowID, verificationID, identityID, resource sql.NullString
			recordID, signature, raw                                sql.NullString
			requestID                                               sql.NullInt64
			valid                                                   sql.NullBool
			ts                                                      sql.NullTime
			meta, body                                              []byte
		)
		err := rows.Scan(&ev.ID, &ev.Provider, &eventName, &flowID, &verificationID, &identityID, &resource,
			&recordID, &requestID, &signature, &valid, &ts, &meta, &body, &raw, &ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		ev.EventName = eventName.String
		ev.FlowID = flowID.String
		ev.VerificationID = verificationID.String
		ev.IdentityID = identityID.String
		ev.Resource = resource.String
		ev.RecordID = recordID.String
		ev.Signature = signature.String
		ev.RawPayload = raw.String
		if requestID.Valid {
			ev.ServiceRequestID = &requestID.Int64
		}
		if valid.Valid {
			ev.SignatureValid = &valid.Bool
		}
		if ts.Valid {
			ev.EventTimestamp = &ts.Time
		}
		if ev.Metadata, err = decode(meta); err != nil {
			return nil, err
		}
		if ev.Payload, err = decode(body); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func jsonOrNil(p payload.Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func decode(raw []byte) (payload.Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p payload.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode webhook json: %w", err)
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
