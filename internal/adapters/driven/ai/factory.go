// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	genaiconv "github.com/custodia-labs/finqa/internal/adapters/driven/converter/genai"
	textconv "github.com/custodia-labs/finqa/internal/adapters/driven/converter/text"
	genaiembed "github.com/custodia-labs/finqa/internal/adapters/driven/embedding/genai"
	ollamaembed "github.com/custodia-labs/finqa/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/finqa/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/finqa/internal/adapters/driven/llm/anthropic"
	genaillm "github.com/custodia-labs/finqa/internal/adapters/driven/llm/genai"
	ollamallm "github.com/custodia-labs/finqa/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/finqa/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/finqa/internal/adapters/driven/llm/ratelimit"
	"github.com/custodia-labs/finqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/finqa/internal/adapters/driven/storage/pgvector"
	"github.com/custodia-labs/finqa/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// fixHint is appended to configuration errors.
const fixHint = "Run 'finqa settings wizard' to fix"

// InitResult contains the adapters built from application settings.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	OrchestratorLLM  driven.LLMService // Plans queries. Nil when no LLM is configured.
	SpecialistLLM    driven.LLMService // Retrieval, calculation and synthesis nodes.
	VectorIndex      driven.VectorIndex
	Converters       []driven.DocumentConverter
	Warnings         []string // Non-fatal issues, e.g. PDF conversion unavailable.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.VectorIndex != nil {
		r.VectorIndex.Close()
	}
	if r.OrchestratorLLM != nil {
		r.OrchestratorLLM.Close()
	}
	if r.SpecialistLLM != nil {
		r.SpecialistLLM.Close()
	}
}

// HasLLM reports whether question answering is available.
func (r *InitResult) HasLLM() bool {
	return r.OrchestratorLLM != nil && r.SpecialistLLM != nil
}

// Initialise builds every adapter the application needs from settings.
// Relative SQLite paths are resolved against dataDir. An embedding
// provider and a vector index are required; a missing LLM or converter
// only adds a warning.
func Initialise(ctx context.Context, settings *domain.AppSettings, dataDir string) (*InitResult, error) {
	result := &InitResult{}

	embedder, err := CreateEmbeddingService(ctx, &settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. %s", domain.ErrEmbeddingUnavailable, err, fixHint)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured. %s", domain.ErrEmbeddingUnavailable, fixHint)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: settings.RateLimit.RequestsPerSecond,
	})
	result.EmbeddingService = ratelimit.NewEmbedding(embedder, limiter)

	index, err := CreateVectorIndex(ctx, settings.Store, embedder.Dimensions(), dataDir)
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
	}
	result.VectorIndex = index

	if settings.LLM.IsConfigured() {
		orchestrator, err := CreateLLMService(ctx, &settings.LLM)
		if err != nil {
			result.Close()
			return nil, fmt.Errorf("%w: %w. %s", domain.ErrLLMUnavailable, err, fixHint)
		}
		specialistSettings := settings.LLM.Specialist()
		specialist, err := CreateLLMService(ctx, &specialistSettings)
		if err != nil {
			orchestrator.Close()
			result.Close()
			return nil, fmt.Errorf("%w: %w. %s", domain.ErrLLMUnavailable, err, fixHint)
		}
		result.OrchestratorLLM = ratelimit.NewLLM(orchestrator, limiter)
		result.SpecialistLLM = ratelimit.NewLLM(specialist, limiter)
	} else {
		result.Warnings = append(result.Warnings, "no LLM provider configured; questions cannot be answered")
	}

	converters, err := CreateConverters(ctx, settings.Converter)
	if err != nil {
		result.Close()
		return nil, err
	}
	result.Converters = converters
	if !settings.Converter.IsConfigured() {
		result.Warnings = append(result.Warnings, "PDF conversion not configured; only .md and .txt files can be ingested")
	}

	for _, w := range result.Warnings {
		logger.Debug("ai: %s", w)
	}
	return result, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateEmbeddingService(
	ctx context.Context, settings *domain.EmbeddingSettings,
) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. %s", domain.ErrEmbeddingUnavailable, err, fixHint)
	}
	if svc == nil {
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). %s", domain.ErrEmbeddingUnavailable, err, fixHint)
	}
	return svc, nil
}

// CreateAndValidateLLMService creates an LLM service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateLLMService(ctx context.Context, settings *domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. %s", domain.ErrLLMUnavailable, err, fixHint)
	}
	if svc == nil {
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). %s", domain.ErrLLMUnavailable, err, fixHint)
	}
	return svc, nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating a service and pinging it.
// This is intended for use in the settings wizard to validate credentials on configuration.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateAndValidateEmbeddingService(context.Background(), settings)
	if err != nil {
		return err
	}
	if svc != nil {
		svc.Close()
	}
	return nil
}

// ValidateLLMConfig validates an LLM configuration by creating a service and pinging it.
// This is intended for use in the settings wizard to validate credentials on configuration.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	svc, err := CreateAndValidateLLMService(context.Background(), settings)
	if err != nil {
		return err
	}
	if svc != nil {
		svc.Close()
	}
	return nil
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, nil
	}
	if settings.Provider == domain.AIProviderAnthropic {
		return nil, errors.New("anthropic does not support embeddings, use ollama, openai or gemini")
	}
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		}), nil

	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	case domain.AIProviderGemini:
		return genaiembed.NewEmbeddingService(ctx, genaiembed.Config{
			APIKey: settings.APIKey,
			Model:  settings.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateLLMService creates the appropriate LLM service based on settings.
// Returns nil if the provider is not configured.
func CreateLLMService(ctx context.Context, settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	case domain.AIProviderAnthropic:
		return anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	case domain.AIProviderGemini:
		return genaillm.NewService(ctx, genaillm.Config{
			APIKey: settings.APIKey,
			Model:  settings.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

// CreateConverters returns the document converters for settings.
// Markdown and text passthrough is always available; PDF conversion
// needs a configured Gemini converter.
func CreateConverters(ctx context.Context, settings domain.ConverterSettings) ([]driven.DocumentConverter, error) {
	converters := []driven.DocumentConverter{textconv.NewConverter()}
	if !settings.IsConfigured() {
		return converters, nil
	}

	conv, err := genaiconv.NewConverter(ctx, genaiconv.Config{
		APIKey: settings.APIKey,
		Model:  settings.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating PDF converter: %w", err)
	}
	return append(converters, conv), nil
}

// CreateVectorIndex opens the configured chunk store backend.
func CreateVectorIndex(
	ctx context.Context, settings domain.StoreSettings, dimensions int, dataDir string,
) (driven.VectorIndex, error) {
	switch settings.Backend {
	case domain.StoreBackendMemory:
		return memory.NewVectorIndex(), nil

	case domain.StoreBackendSQLite, "":
		return sqlite.NewStore(ResolvePath(settings.Path, dataDir))

	case domain.StoreBackendPGVector:
		return pgvector.NewStore(ctx, settings.DSN, dimensions)

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", settings.Backend)
	}
}

// ResolvePath joins a relative path onto dir. Empty paths stay empty.
func ResolvePath(path, dir string) string {
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
