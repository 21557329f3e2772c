package driven

import (
	"context"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// DocumentConverter turns a source document into marked text where every
// section starts with "#Section <name>" followed by "#Page <n>".
type DocumentConverter interface {
	// Convert reads the document at path and returns its marked text.
	Convert(ctx context.Context, path string, docType domain.DocumentType) (string, error)

	// Supports reports whether the converter handles the file extension,
	// including the leading dot.
	Supports(ext string) bool
}
