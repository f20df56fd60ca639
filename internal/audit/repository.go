package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bnn-rehab/internal/store"

	"go.uber.org/zap"
)

// Entry is one persisted audit row.
type Entry struct {
	StreamID string    `json:"stream_id"`
	Op       string    `json:"op"`
	RecordID string    `json:"record_id"`
	Status   string    `json:"status,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	At       time.Time `json:"at"`
}

// AuditRepository stores events in case_record_audit.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates the repository.
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the audit table when missing.
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS case_record_audit (
			stream_id  TEXT PRIMARY KEY,
			op         TEXT NOT NULL,
			record_id  TEXT NOT NULL,
			status     TEXT,
			actor      TEXT,
			at         TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create case_record_audit: %w", err)
	}
	return nil
}

// Insert stores one event; redelivered stream entries are ignored.
func (r *AuditRepository) Insert(ctx context.Context, streamID string, ev store.AuditEvent) error {
	query := `
		INSERT INTO case_record_audit (stream_id, op, record_id, status, actor, at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stream_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		streamID,
		ev.Op,
		ev.RecordID,
		nullString(ev.Status),
		nullString(ev.Actor),
		ev.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListByRecord returns the newest events for a record first.
func (r *AuditRepository) ListByRecord(ctx context.Context, recordID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT stream_id, op, record_id, status, actor, at
		FROM case_record_audit
		WHERE record_id = $1
		ORDER BY at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var status, actor sql.NullString
		if err := rows.Scan(&e.StreamID, &e.Op, &e.RecordID, &status, &actor, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Status = status.String
		e.Actor = actor.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
