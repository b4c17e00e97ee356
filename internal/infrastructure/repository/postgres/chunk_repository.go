package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082902)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	chunk_index INT NOT NULL,
	span_start INT NOT NULL,
	span_end INT NOT NULL,
	text TEXT NOT NULL,
	section TEXT NOT NULL DEFAULT '',
	page INT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks(owner_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	return tx.Commit()
}

// SaveAll replaces the document's chunks in one transaction so a reindex
// never leaves a mix of old and new chunks behind.
func (r *ChunkRepository) SaveAll(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	documentID := chunks[0].DocumentID
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, document_id, owner_id, chunk_index, span_start, span_end, text, section, page)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.DocumentID != documentID {
			return fmt.Errorf("chunk %s belongs to document %s, expected %s", ch.ID, ch.DocumentID, documentID)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.OwnerID, ch.Index, ch.Start, ch.End, ch.Text, ch.Section, ch.Page,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.Index, err)
		}
	}

	return tx.Commit()
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
