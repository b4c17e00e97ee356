package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	ledong "github.com/ledongthuc/pdf"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
	"github.com/medivault/health-record-vault/internal/infrastructure/extractor/plaintext"
)

// Extractor pulls plain text out of PDF reports. Pages are concatenated
// with blank lines between them so the sentence chunker can respect page
// boundaries as topic breaks.
type Extractor struct {
	storage ports.ObjectStorage
}

func New(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	parsed, err := ledong.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse pdf",
			fmt.Errorf("document %s: %w", doc.Filename, err))
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= parsed.NumPage(); pageNum++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		page := parsed.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d of %s: %w", pageNum, doc.Filename, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(strings.TrimSpace(text))
	}

	return plaintext.Normalize(builder.String()), nil
}
