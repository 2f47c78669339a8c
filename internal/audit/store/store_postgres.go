package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"simkyc/internal/audit"
)

// PostgresStore writes audit events to audit_logs.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, ev audit.Event) error {
	var body []byte
	if ev.Payload != nil {
		var err error
		if body, err = json.Marshal(ev.Payload); err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
	}
	query := `
		INSERT INTO audit_logs (
			action, service_request_id, ip_address, user_agent, browser, os, is_mobile,
			request_id, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(ev.Action),
		ev.ServiceRequestID,
		nullString(ev.IP),
		nullString(ev.UserAgent),
		nullString(ev.Browser),
		nullString(ev.OS),
		ev.IsMobile,
		nullString(ev.RequestID),
		body,
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRequest(ctx context.Context, serviceRequestID int64) ([]audit.Event, error) {
	query := `
		SELECT id, action, service_request_id, ip_address, user_agent, browser, os, is_mobile,
			request_id, payload, created_at
		FROM audit_logs WHERE service_request_id = $1 ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, serviceRequestID)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev                             audit.Event
			action                         string
			requestID                      sql.NullInt64
			ip, ua, browser, os, reqHeader sql.NullString
			body                           []byte
		)
		if err := rows.Scan(&ev.ID, &action, &requestID, &ip, &ua, &browser, &os, &ev.IsMobile,
			&reqHeader, &body, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		ev.Action = audit.Action(action)
		if requestID.Valid {
			ev.ServiceRequestID = &requestID.Int64
		}
		ev.IP, ev.UserAgent, ev.Browser, ev.OS, ev.RequestID = ip.String, ua.String, browser.String, os.String, reqHeader.String
		if len(body) > 0 {
			if err := json.Unmarshal(body, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
