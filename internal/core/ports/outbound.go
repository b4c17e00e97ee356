package ports

import (
	"context"
	"io"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveText(ctx context.Context, id, text string) error
	SoftDelete(ctx context.Context, ownerID, id string) error
}

// ChunkRepository persists the chunks produced by one processing pass.
type ChunkRepository interface {
	SaveAll(ctx context.Context, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// GrantStore looks up access grants written by the auth/consent
// collaborator. Grants are read-only facts to the core.
type GrantStore interface {
	FindGrant(ctx context.Context, requesterID, ownerID string, scope domain.AccessScope) (*domain.AccessGrant, error)
}

// AnswerStore persists write-once answers for audit.
type AnswerStore interface {
	Save(ctx context.Context, answer *domain.Answer) error
}

// AuditSink appends compliance events. Implementations must not drop an
// entry on transient failure; exhaustion of the retry budget escalates.
type AuditSink interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}

// Embedder builds vectors for chunk and query text. Batch embedding is
// order-preserving and deterministic: the same input text always yields the
// same vector, whether embedded alone or in a batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Chunker splits normalized text into span-tracked chunks.
type Chunker interface {
	Chunk(text string, cfg domain.ChunkingConfig) ([]domain.Chunk, error)
}

// VectorIndex maintains the per-tenant chunk index. Index and Remove are
// atomic with respect to concurrent searches, and mutations for a given
// tenant are serialized. Searches against a tenant with no index return
// domain.ErrIndexUnavailable.
type VectorIndex interface {
	Index(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error
	Remove(ctx context.Context, ownerID, documentID string) error
	SearchSemantic(ctx context.Context, ownerID string, queryVector []float32, limit int) ([]domain.ScoredChunk, error)
	SearchKeyword(ctx context.Context, ownerID, queryText string, limit int) ([]domain.ScoredChunk, error)
}

// Reranker reorders the head of a candidate list with a secondary scorer.
type Reranker interface {
	Rerank(query string, candidates []domain.ScoredChunk, topN int) []domain.ScoredChunk
}

// AnswerGenerator invokes the language model collaborator.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TextExtractor turns a stored document into normalized plain text.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// ObjectStorage stores raw uploaded bytes until extraction. Save returns
// the storage path the object can later be opened by.
type ObjectStorage interface {
	Save(ctx context.Context, ownerID, objectID string, body io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}
