package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// AuditRepository is the durable archive behind the audit sink. The sink
// spills locally first and drains into this table, so Append must be
// idempotent on entry id.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082905)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	requester_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	query TEXT NOT NULL,
	scope TEXT NOT NULL,
	outcome TEXT NOT NULL,
	citation_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_owner_time ON audit_entries(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_requester_time ON audit_entries(requester_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	return tx.Commit()
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	citationsJSON, err := json.Marshal(entry.CitationIDs)
	if err != nil {
		return fmt.Errorf("marshal citation ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO audit_entries (id, requester_id, owner_id, query, scope, outcome, citation_ids, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING
`,
		entry.ID, entry.RequesterID, entry.OwnerID, entry.Query,
		string(entry.Scope), string(entry.Outcome), citationsJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
