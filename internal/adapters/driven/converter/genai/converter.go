// Package genai converts PDF documents to marked text using Gemini.
//
// The PDF is checked with pdfcpu, sent inline with a prompt chosen by
// document type, and the model's markdown is returned as is. Section and
// page markers are parsed downstream by the section extractor.
package genai

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"google.golang.org/genai"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/logger"
)

// Ensure Converter implements the interface.
var _ driven.DocumentConverter = (*Converter)(nil)

// Default configuration values.
const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultStatementModel = "gemini-2.5-pro"
	DefaultMaxPages       = 300
)

// Inline requests are capped by the API.
const maxInlineBytes = 20 << 20

//go:embed prompts/*.txt
var promptFS embed.FS

// Config holds configuration for the Gemini converter.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model converts presentations, transcripts and general documents
	// (default: gemini-2.5-flash).
	Model string

	// StatementModel converts financial statements, whose dense tables
	// need the stronger model (default: gemini-2.5-pro).
	StatementModel string

	// MaxPages rejects documents longer than this (default: 300).
	MaxPages int
}

// Converter turns PDFs into marked markdown.
type Converter struct {
	models         *genai.Models
	model          string
	statementModel string
	maxPages       int
}

// NewConverter creates a new Gemini converter.
func NewConverter(ctx context.Context, cfg Config) (*Converter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.StatementModel == "" {
		cfg.StatementModel = DefaultStatementModel
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Converter{
		models:         client.Models,
		model:          cfg.Model,
		statementModel: cfg.StatementModel,
		maxPages:       cfg.MaxPages,
	}, nil
}

// Supports reports whether ext is a PDF extension.
func (c *Converter) Supports(ext string) bool {
	return strings.EqualFold(ext, ".pdf")
}

// Convert sends the PDF at path to Gemini and returns its marked text.
func (c *Converter) Convert(ctx context.Context, path string, docType domain.DocumentType) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	pages, err := c.inspect(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrConversionFailed, filepath.Base(path), err)
	}

	prompt, err := promptFor(docType)
	if err != nil {
		return "", err
	}

	model := c.modelFor(docType)
	logger.Info("Converting %s (%d pages, %s) with %s", filepath.Base(path), pages, docType, model)

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(data, "application/pdf"),
		}, genai.RoleUser),
	}
	resp, err := c.models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrConversionFailed, filepath.Base(path), err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: %s: empty response", domain.ErrConversionFailed, filepath.Base(path))
	}
	return stripFence(text), nil
}

// inspect validates the PDF and returns its page count.
func (c *Converter) inspect(data []byte) (int, error) {
	if len(data) > maxInlineBytes {
		return 0, fmt.Errorf("file is %d bytes, limit is %d", len(data), maxInlineBytes)
	}
	pages, err := api.PageCount(bytes.NewReader(data), api.LoadConfiguration())
	if err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	if pages == 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	if pages > c.maxPages {
		return 0, fmt.Errorf("PDF has %d pages, limit is %d", pages, c.maxPages)
	}
	return pages, nil
}

// modelFor picks the conversion model for a document type.
func (c *Converter) modelFor(docType domain.DocumentType) string {
	if docType == domain.DocumentTypeFinancialStatement {
		return c.statementModel
	}
	return c.model
}

// promptFor loads the conversion prompt for a document type.
// Unknown types use the general prompt.
func promptFor(docType domain.DocumentType) (string, error) {
	if !docType.IsValid() {
		docType = domain.DocumentTypeGeneral
	}
	data, err := promptFS.ReadFile("prompts/" + string(docType) + ".txt")
	if err != nil {
		return "", fmt.Errorf("loading %s prompt: %w", docType, err)
	}
	return string(data), nil
}

// stripFence removes a markdown code fence wrapped around the whole reply.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	} else {
		return text
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
