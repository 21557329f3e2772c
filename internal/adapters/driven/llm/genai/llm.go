// Package genai provides an LLM service adapter using the Google Gemini API.
package genai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
)

// Ensure Service implements the interface.
var _ driven.LLMService = (*Service)(nil)

// DefaultModel is the default Gemini model.
const DefaultModel = "gemini-2.5-flash"

// Config holds configuration for the Gemini LLM service.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the model to use (default: gemini-2.5-flash).
	Model string
}

// Service generates completions using Gemini.
type Service struct {
	models *genai.Models
	model  string
}

// NewService creates a new Gemini LLM service.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Service{
		models: client.Models,
		model:  cfg.Model,
	}, nil
}

// Generate produces text completion from a prompt.
func (s *Service) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(prompt), generateConfig(opts))
	if err != nil {
		return "", classify(err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}

// generateConfig maps provider-neutral options onto a Gemini request.
// Temperature is always sent so that zero means deterministic.
func generateConfig(opts driven.GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if len(opts.StopWords) > 0 {
		cfg.StopSequences = opts.StopWords
	}
	if opts.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// classify maps quota errors onto the rate-limit sentinel.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("gemini: %w: %v", domain.ErrRateLimited, err)
	}
	return fmt.Errorf("gemini generate: %w", err)
}

// ModelName returns the name of the LLM model being used.
func (s *Service) ModelName() string {
	return s.model
}

// Ping validates the API key by fetching the model description.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.models.Get(ctx, s.model, nil); err != nil {
		return fmt.Errorf("gemini: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *Service) Close() error {
	return nil
}
