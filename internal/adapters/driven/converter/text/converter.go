// Package text passes through documents that are already marked text.
package text

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.DocumentConverter = (*Converter)(nil)

// Extensions handled by the passthrough converter.
var extensions = []string{".md", ".markdown", ".txt"}

// Converter reads markdown and plain text files unchanged.
type Converter struct{}

// NewConverter creates a passthrough converter.
func NewConverter() *Converter {
	return &Converter{}
}

// Supports reports whether ext is a text extension.
func (c *Converter) Supports(ext string) bool {
	for _, e := range extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// Convert returns the file content. A UTF-8 byte order mark is dropped.
func (c *Converter) Convert(_ context.Context, path string, _ domain.DocumentType) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
