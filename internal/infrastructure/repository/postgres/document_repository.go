package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	uploaded_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	return tx.Commit()
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, kind, filename, mime_type, storage_path, text, status, error_message, uploaded_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		doc.ID, doc.OwnerID, string(doc.Kind), doc.Filename, doc.MimeType, doc.StoragePath,
		doc.Text, string(doc.Status), doc.Error, doc.UploadedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, owner_id, kind, filename, mime_type, storage_path, text, status, error_message, uploaded_at, updated_at
FROM documents
WHERE id = $1 AND deleted_at IS NULL
`, id)

	var doc domain.Document
	var kind, status string

	err := row.Scan(
		&doc.ID, &doc.OwnerID, &kind, &doc.Filename, &doc.MimeType, &doc.StoragePath,
		&doc.Text, &status, &doc.Error, &doc.UploadedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document",
				fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Kind = domain.DocumentKind(kind)
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

func (r *DocumentRepository) SaveText(ctx context.Context, id, text string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET text = $2, updated_at = $3
WHERE id = $1
`, id, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document text: %w", err)
	}
	return nil
}

// SoftDelete marks the document deleted. The row stays for the audit
// trail; retrieval excludes it via deleted_at.
func (r *DocumentRepository) SoftDelete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET deleted_at = $3, updated_at = $3
WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
`, id, ownerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "soft delete document",
			fmt.Errorf("id %s for owner %s", id, ownerID))
	}
	return nil
}
