package ports

import (
	"context"
	"io"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// QueryService is the inbound contract for citation-grounded answering.
type QueryService interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
	Summarize(ctx context.Context, requesterID, ownerID string) (*domain.Answer, error)
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, ownerID string, kind domain.DocumentKind, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous processing of
// an uploaded document: extract, chunk, embed, index.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, ownerID, id string) (*domain.Document, error)
}

// DocumentDeleter removes an owner's document and cascades the removal of
// its chunks from the index.
type DocumentDeleter interface {
	Delete(ctx context.Context, ownerID, id string) error
}
