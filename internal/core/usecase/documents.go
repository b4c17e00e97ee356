package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
)

// DocumentUseCase covers the owner-facing document operations outside the
// query path: read status and delete with index cascade.
type DocumentUseCase struct {
	docs    ports.DocumentRepository
	chunks  ports.ChunkRepository
	index   ports.VectorIndex
	storage ports.ObjectStorage
	logger  *slog.Logger
}

func NewDocumentUseCase(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	index ports.VectorIndex,
	storage ports.ObjectStorage,
	logger *slog.Logger,
) *DocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentUseCase{
		docs:    docs,
		chunks:  chunks,
		index:   index,
		storage: storage,
		logger:  logger,
	}
}

// GetByID returns the owner's document. A wrong owner sees the same
// not-found as a missing id.
func (uc *DocumentUseCase) GetByID(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := uc.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document",
			fmt.Errorf("id %s", id))
	}
	return doc, nil
}

// Delete removes the document and cascades: chunks leave the vector index
// first so searches stop returning them, then the chunk rows and the
// document record go.
func (uc *DocumentUseCase) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := uc.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := uc.index.Remove(ctx, ownerID, id); err != nil {
		return fmt.Errorf("remove from index: %w", err)
	}
	if err := uc.chunks.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := uc.docs.SoftDelete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
		// The record is already gone; the orphaned object is only a
		// storage leak, not a correctness problem.
		uc.logger.Error("delete stored object failed",
			"document_id", id, "path", doc.StoragePath, "error", err)
	}

	uc.logger.Info("document deleted", "document_id", id, "owner_id", ownerID)
	return nil
}
