package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrChunking marks invalid chunking parameters. Not retryable.
	ErrChunking = errors.New("chunking parameters invalid")
	// ErrIndexUnavailable means the tenant has no index yet (zero documents
	// ingested). Callers treat it as "nothing to search", not a failure.
	ErrIndexUnavailable = errors.New("tenant index unavailable")
	// ErrEmbedding marks a transient embedding collaborator failure.
	ErrEmbedding = errors.New("embedding generation failed")
	// ErrLLM marks a transient language model collaborator failure.
	ErrLLM = errors.New("language model call failed")
	// ErrAccessDenied is terminal, always audited, never retried.
	ErrAccessDenied = errors.New("not authorized")
	// ErrAuditExhausted means the audit retry budget ran out. Fatal; must
	// never be swallowed.
	ErrAuditExhausted = errors.New("audit write retry budget exhausted")

	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err, kind error) bool {
	return errors.Is(err, kind)
}
