package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"vitaex/pkg/platform/sentinel"
)

// PostgresStore persists audit entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the audit table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			ts TIMESTAMPTZ NOT NULL,
			action TEXT NOT NULL,
			user_id TEXT,
			actor TEXT,
			details JSONB DEFAULT '{}'::jsonb,
			correlation_id TEXT
		)`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id, ts DESC)`)
	if err != nil {
		return fmt.Errorf("ensure audit index: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, action, user_id, actor, details, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Timestamp, entry.Action, entry.UserID, entry.Actor, details, entry.CorrelationID)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, action, user_id, actor, details, correlation_id
		FROM audit_log WHERE user_id = $1 ORDER BY ts DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var details []byte
		if err := rows.Scan(&entry.Timestamp, &entry.Action, &entry.UserID, &entry.Actor, &details, &entry.CorrelationID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
