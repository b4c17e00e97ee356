package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

type AnswerRepository struct {
	db *sql.DB
}

func NewAnswerRepository(db *sql.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

func (r *AnswerRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082904)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS answers (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	mode TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	citations JSONB NOT NULL DEFAULT '[]'::jsonb,
	confidence DOUBLE PRECISION NOT NULL,
	source_chunk_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_answers_owner ON answers(owner_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	return tx.Commit()
}

// Save persists a completed answer. Answers are write-once; there is no
// update path.
func (r *AnswerRepository) Save(ctx context.Context, answer *domain.Answer) error {
	citationsJSON, err := json.Marshal(answer.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	sourcesJSON, err := json.Marshal(answer.SourceChunkIDs)
	if err != nil {
		return fmt.Errorf("marshal source chunk ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO answers (id, owner_id, mode, text, citations, confidence, source_chunk_ids, degraded, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		answer.ID, answer.OwnerID, string(answer.Mode), answer.Text, citationsJSON,
		answer.Confidence, sourcesJSON, answer.Degraded, answer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}
