// Package extractor dispatches text extraction to a format-specific
// implementation based on the document's MIME type and filename.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
)

type Composite struct {
	plain ports.TextExtractor
	pdf   ports.TextExtractor
}

func NewComposite(plain, pdf ports.TextExtractor) *Composite {
	return &Composite{plain: plain, pdf: pdf}
}

func (c *Composite) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	switch {
	case isPDF(doc):
		return c.pdf.Extract(ctx, doc)
	case isPlainText(doc):
		return c.plain.Extract(ctx, doc)
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("unsupported document format %q (%s)", doc.MimeType, doc.Filename))
	}
}

func isPDF(doc *domain.Document) bool {
	if strings.EqualFold(doc.MimeType, "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(doc.Filename), ".pdf")
}

func isPlainText(doc *domain.Document) bool {
	mime := strings.ToLower(doc.MimeType)
	if strings.HasPrefix(mime, "text/") || mime == "application/json" {
		return true
	}
	switch strings.ToLower(filepath.Ext(doc.Filename)) {
	case ".txt", ".md", ".csv", ".json":
		return true
	}
	return false
}
