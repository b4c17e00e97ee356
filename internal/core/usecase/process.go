package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
)

// ProcessUseCase runs the build-time pipeline for one document: extract,
// chunk, embed, index, persist chunks. An aborted run leaves the document
// failed with nothing partially indexed, retryable from scratch.
type ProcessUseCase struct {
	docs      ports.DocumentRepository
	chunks    ports.ChunkRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	cfg       domain.ChunkingConfig
	logger    *slog.Logger

	newID func() string
}

func NewProcessUseCase(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	cfg domain.ChunkingConfig,
	logger *slog.Logger,
) *ProcessUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessUseCase{
		docs:      docs,
		chunks:    chunks,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		cfg:       cfg,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

func (uc *ProcessUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status == domain.StatusProcessed {
		// Queue redelivery of an already processed document is a no-op.
		return nil
	}

	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return uc.fail(ctx, doc, fmt.Errorf("extract text: %w", err))
	}
	if err := uc.docs.SaveText(ctx, doc.ID, text); err != nil {
		return uc.fail(ctx, doc, fmt.Errorf("save text: %w", err))
	}

	chunks, err := uc.chunker.Chunk(text, uc.cfg)
	if err != nil {
		return uc.fail(ctx, doc, fmt.Errorf("chunk text: %w", err))
	}
	if len(chunks) == 0 {
		uc.logger.Info("document has no text to index", "document_id", doc.ID)
		return uc.docs.UpdateStatus(ctx, doc.ID, domain.StatusProcessed, "")
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].ID = uc.newID()
		chunks[i].DocumentID = doc.ID
		chunks[i].OwnerID = doc.OwnerID
		texts[i] = chunks[i].Text
	}

	// Embedding happens before any index mutation so no lock is held
	// across the external call.
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return uc.fail(ctx, doc, fmt.Errorf("embed chunks: %w", err))
	}
	if len(vectors) != len(chunks) {
		return uc.fail(ctx, doc, domain.WrapError(domain.ErrEmbedding, "embed chunks",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := uc.index.Index(ctx, doc, chunks); err != nil {
		uc.unwind(doc)
		return uc.fail(ctx, doc, fmt.Errorf("index chunks: %w", err))
	}
	if err := uc.chunks.SaveAll(ctx, chunks); err != nil {
		uc.unwind(doc)
		return uc.fail(ctx, doc, fmt.Errorf("persist chunks: %w", err))
	}

	if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.StatusProcessed, ""); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	uc.logger.Info("document processed",
		"document_id", doc.ID, "owner_id", doc.OwnerID, "chunks", len(chunks))
	return nil
}

// unwind removes whatever the aborted pass may have indexed. Runs on a
// detached context so cancellation cannot strand partial chunks.
func (uc *ProcessUseCase) unwind(doc *domain.Document) {
	cleanupCtx := context.Background()
	if err := uc.index.Remove(cleanupCtx, doc.OwnerID, doc.ID); err != nil {
		uc.logger.Error("unwind partial index failed",
			"document_id", doc.ID, "error", err)
	}
}

func (uc *ProcessUseCase) fail(ctx context.Context, doc *domain.Document, cause error) error {
	statusCtx := context.WithoutCancel(ctx)
	if err := uc.docs.UpdateStatus(statusCtx, doc.ID, domain.StatusFailed, cause.Error()); err != nil {
		uc.logger.Error("mark document failed", "document_id", doc.ID, "error", err)
	}
	return cause
}
