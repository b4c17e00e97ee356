package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// GrantRepository reads access grants written by the consent service.
// The vault never creates or revokes grants, it only consults them.
type GrantRepository struct {
	db *sql.DB
}

func NewGrantRepository(db *sql.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082903)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS access_grants (
	requester_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	scope TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (requester_id, owner_id, scope)
);

CREATE INDEX IF NOT EXISTS idx_access_grants_owner ON access_grants(owner_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	return tx.Commit()
}

// FindGrant returns the matching grant or nil when none exists. Expiry is
// not filtered here; the access gate checks it against its own clock.
func (r *GrantRepository) FindGrant(ctx context.Context, requesterID, ownerID string, scope domain.AccessScope) (*domain.AccessGrant, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT requester_id, owner_id, scope, expires_at
FROM access_grants
WHERE requester_id = $1 AND owner_id = $2 AND scope = $3
`, requesterID, ownerID, string(scope))

	var grant domain.AccessGrant
	var rawScope string
	err := row.Scan(&grant.RequesterID, &grant.OwnerID, &rawScope, &grant.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan access grant: %w", err)
	}
	grant.Scope = domain.AccessScope(rawScope)
	return &grant, nil
}
