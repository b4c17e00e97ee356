package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
)

// IngestUseCase accepts an upload, persists the pending document and
// hands the heavy work (extract, chunk, embed, index) to the worker via
// the queue.
type IngestUseCase struct {
	docs    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewIngestUseCase(
	docs ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		docs:    docs,
		storage: storage,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (uc *IngestUseCase) Upload(ctx context.Context, ownerID string, kind domain.DocumentKind, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("owner id is required"))
	}
	if !kind.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("unknown document kind %q", kind))
	}
	filename = sanitizeFilename(filename)
	if filename == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("filename is required"))
	}

	id := uc.newID()
	path, err := uc.storage.Save(ctx, ownerID, id, body)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	now := uc.now().UTC()
	doc := &domain.Document{
		ID:          id,
		OwnerID:     ownerID,
		Kind:        kind,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: path,
		Status:      domain.StatusPending,
		UploadedAt:  now,
		UpdatedAt:   now,
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		if delErr := uc.storage.Delete(ctx, path); delErr != nil {
			uc.logger.Error("orphaned upload cleanup failed", "path", path, "error", delErr)
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, id); err != nil {
		if statusErr := uc.docs.UpdateStatus(ctx, id, domain.StatusFailed, "enqueue for processing failed"); statusErr != nil {
			uc.logger.Error("mark document failed after publish error",
				"document_id", id, "error", statusErr)
		}
		return nil, fmt.Errorf("enqueue document: %w", err)
	}

	uc.logger.Info("document accepted",
		"document_id", id, "owner_id", ownerID, "kind", string(kind))
	return doc, nil
}

// sanitizeFilename strips any path components from a client-supplied name.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == string(filepath.Separator) || name == "/" {
		return ""
	}
	return name
}
