// Package audit implements the compliance sink. Record spills entries to
// a local sqlite queue synchronously, so an accepted entry survives a
// process crash; a background flusher drains the queue into the postgres
// archive with a bounded retry budget.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/infrastructure/resilience"
)

// Archive is the durable long-term store the queue drains into.
type Archive interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}

type DurableSink struct {
	db       *sql.DB
	archive  Archive
	executor *resilience.Executor
	logger   *slog.Logger

	retryBudget   int
	flushInterval time.Duration
	flushBatch    int
	escalate      func(domain.AuditEntry, error)
}

type Options struct {
	// RetryBudget is the number of archive attempts per entry before the
	// entry is dead-lettered and escalated.
	RetryBudget   int
	FlushInterval time.Duration
	FlushBatch    int
	Executor      *resilience.Executor
	Logger        *slog.Logger
	// Escalate is invoked when an entry exhausts its budget. The entry is
	// kept in the dead-letter table either way.
	Escalate func(domain.AuditEntry, error)
}

func NewDurableSink(path string, archive Archive, options Options) (*DurableSink, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit queue: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent Record calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS audit_queue (
	id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	enqueued_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_dead_letter (
	id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	last_error TEXT NOT NULL,
	failed_at TIMESTAMP NOT NULL
);
`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit queue schema: %w", err)
	}

	sink := &DurableSink{
		db:            db,
		archive:       archive,
		executor:      options.Executor,
		logger:        options.Logger,
		retryBudget:   options.RetryBudget,
		flushInterval: options.FlushInterval,
		flushBatch:    options.FlushBatch,
		escalate:      options.Escalate,
	}
	if sink.retryBudget <= 0 {
		sink.retryBudget = 5
	}
	if sink.flushInterval <= 0 {
		sink.flushInterval = 2 * time.Second
	}
	if sink.flushBatch <= 0 {
		sink.flushBatch = 64
	}
	if sink.logger == nil {
		sink.logger = slog.Default()
	}
	return sink, nil
}

func (s *DurableSink) Close() error {
	return s.db.Close()
}

// Record accepts the entry once it is on local disk. Archive delivery
// happens asynchronously in Run.
func (s *DurableSink) Record(ctx context.Context, entry domain.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO audit_queue (id, payload, attempts, enqueued_at)
VALUES (?, ?, 0, ?)
ON CONFLICT (id) DO NOTHING
`, entry.ID, string(payload), time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrAuditExhausted, "spill audit entry", err)
	}
	return nil
}

// Depth reports the number of entries waiting for the archive.
func (s *DurableSink) Depth(ctx context.Context) (int, error) {
	var depth int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_queue`).Scan(&depth); err != nil {
		return 0, fmt.Errorf("audit queue depth: %w", err)
	}
	return depth, nil
}

// Run drains the queue until ctx is cancelled.
func (s *DurableSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("audit flush failed", "error", err)
			}
		}
	}
}

// Flush attempts one delivery pass over the oldest queued entries.
func (s *DurableSink) Flush(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, payload, attempts
FROM audit_queue
ORDER BY enqueued_at
LIMIT ?
`, s.flushBatch)
	if err != nil {
		return fmt.Errorf("read audit queue: %w", err)
	}

	type queued struct {
		id       string
		payload  string
		attempts int
	}
	var batch []queued
	for rows.Next() {
		var q queued
		if err := rows.Scan(&q.id, &q.payload, &q.attempts); err != nil {
			rows.Close()
			return fmt.Errorf("scan audit queue row: %w", err)
		}
		batch = append(batch, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate audit queue: %w", err)
	}

	for _, q := range batch {
		var entry domain.AuditEntry
		if err := json.Unmarshal([]byte(q.payload), &entry); err != nil {
			// Unreadable payloads can never deliver; park them immediately.
			s.deadLetter(ctx, q.id, q.payload, err)
			continue
		}

		deliver := func(ctx context.Context) error {
			return s.archive.Append(ctx, entry)
		}
		var deliverErr error
		if s.executor != nil {
			deliverErr = s.executor.Execute(ctx, "audit.archive", deliver, classifyArchiveError)
		} else {
			deliverErr = deliver(ctx)
		}

		if deliverErr == nil {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM audit_queue WHERE id = ?`, q.id); err != nil {
				return fmt.Errorf("dequeue audit entry: %w", err)
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts := q.attempts + 1
		if attempts >= s.retryBudget {
			s.deadLetter(ctx, q.id, q.payload, deliverErr)
			escErr := domain.WrapError(domain.ErrAuditExhausted, "archive audit entry", deliverErr)
			s.logger.Error("audit entry exhausted retry budget",
				"entry_id", q.id, "attempts", attempts, "error", deliverErr)
			if s.escalate != nil {
				s.escalate(entry, escErr)
			}
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE audit_queue SET attempts = ? WHERE id = ?`, attempts, q.id); err != nil {
			return fmt.Errorf("bump audit attempts: %w", err)
		}
	}
	return nil
}

func (s *DurableSink) deadLetter(ctx context.Context, id, payload string, cause error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_dead_letter (id, payload, last_error, failed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`, id, payload, cause.Error(), time.Now().UTC())
	if err != nil {
		s.logger.Error("audit dead-letter write failed", "entry_id", id, "error", err)
		return
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audit_queue WHERE id = ?`, id); err != nil {
		s.logger.Error("audit dead-letter dequeue failed", "entry_id", id, "error", err)
	}
}

func classifyArchiveError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
