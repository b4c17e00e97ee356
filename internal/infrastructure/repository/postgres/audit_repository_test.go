package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

func TestAuditRepositoryAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAuditRepository(db)
	entry := domain.AuditEntry{
		ID:          "a-1",
		RequesterID: "medic-1",
		OwnerID:     "patient-1",
		Query:       "current medications",
		Scope:       domain.ScopeEmergency,
		Outcome:     domain.OutcomeAuthorized,
		CreatedAt:   time.Now(),
	}

	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(entry.ID, entry.RequesterID, entry.OwnerID, entry.Query,
			string(entry.Scope), string(entry.Outcome), sqlmock.AnyArg(), entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAuditRepositoryAppendIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewAuditRepository(db)
	entry := domain.AuditEntry{ID: "a-1", Scope: domain.ScopeSelf, Outcome: domain.OutcomeDenied, CreatedAt: time.Now()}

	// Conflict on id resolves to no-op, not an error.
	mock.ExpectExec("INSERT INTO audit_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append() on duplicate error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
