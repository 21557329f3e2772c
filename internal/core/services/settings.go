package services

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider      = "embedding.provider"
	keyEmbedModel         = "embedding.model"
	keyEmbedBaseURL       = "embedding.base_url"
	keyEmbedAPIKey        = "embedding.api_key"
	keyLLMProvider        = "llm.provider"
	keyLLMModel           = "llm.model"
	keyLLMSpecialistModel = "llm.specialist_model"
	keyLLMBaseURL         = "llm.base_url"
	keyLLMAPIKey          = "llm.api_key"
	keyLLMTemperature     = "llm.temperature"
	keyConverterProvider  = "converter.provider"
	keyConverterModel     = "converter.model"
	keyConverterAPIKey    = "converter.api_key"
	keyStoreBackend       = "store.backend"
	keyStorePath          = "store.path"
	keyStoreDSN           = "store.dsn"
	keyPerQueryLimit      = "retrieval.per_query_limit"
	keyDedupPrefix        = "retrieval.dedup_prefix"
	keyRelaxedMaxDistance = "retrieval.relaxed_max_distance"
	keyContextTokens      = "retrieval.context_tokens"
	keyChunkerMaxChars    = "chunker.max_chars"
	keyIngestConcurrency  = "ingest.concurrency"
	keyRateLimitRPS       = "ratelimit.rps"
)

// Environment variables that override stored settings when set.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvOllamaURL       = "OLLAMA_URL"
	EnvOllamaModel     = "OLLAMA_MODEL"
	EnvPostgresDSN     = "FINQA_PG_DSN"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	lookupEnv   func(string) (string, bool)
	validate    *validator.Validate
}

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithEnvLookup replaces the environment lookup used for overrides.
func WithEnvLookup(fn func(string) (string, bool)) SettingsOption {
	return func(s *SettingsService) {
		s.lookupEnv = fn
	}
}

// NewSettingsService creates a new settings service.
// The aiValidator parameter is optional (can be nil).
func NewSettingsService(
	configStore driven.ConfigStore,
	aiValidator driven.AIConfigValidator,
	opts ...SettingsOption,
) *SettingsService {
	s := &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		lookupEnv:   os.LookupEnv,
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves current application settings with environment overrides applied.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := s.stored()
	s.applyEnv(settings)
	return settings, nil
}

// stored reads settings from the config store only.
func (s *SettingsService) stored() *domain.AppSettings {
	defaults := domain.DefaultAppSettings()

	return &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:    s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:  s.getString(keyEmbedBaseURL, defaults.Embedding.BaseURL),
			APIKey:   s.configStore.GetString(keyEmbedAPIKey),
		},
		LLM: domain.LLMSettings{
			Provider:        s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			Model:           s.getString(keyLLMModel, defaults.LLM.Model),
			SpecialistModel: s.configStore.GetString(keyLLMSpecialistModel),
			BaseURL:         s.configStore.GetString(keyLLMBaseURL), // No default - empty is valid for cloud providers
			APIKey:          s.configStore.GetString(keyLLMAPIKey),
			Temperature:     s.getFloat(keyLLMTemperature, defaults.LLM.Temperature),
		},
		Converter: domain.ConverterSettings{
			Provider: s.getProvider(keyConverterProvider, defaults.Converter.Provider),
			Model:    s.getString(keyConverterModel, defaults.Converter.Model),
			APIKey:   s.configStore.GetString(keyConverterAPIKey),
		},
		Store: domain.StoreSettings{
			Backend: s.getBackend(defaults.Store.Backend),
			Path:    s.getString(keyStorePath, defaults.Store.Path),
			DSN:     s.configStore.GetString(keyStoreDSN),
		},
		Retrieval: domain.RetrievalSettings{
			PerQueryLimit:      s.getInt(keyPerQueryLimit, defaults.Retrieval.PerQueryLimit),
			DedupPrefix:        s.getInt(keyDedupPrefix, defaults.Retrieval.DedupPrefix),
			RelaxedMaxDistance: s.getFloat(keyRelaxedMaxDistance, defaults.Retrieval.RelaxedMaxDistance),
			ContextTokens:      s.getInt(keyContextTokens, defaults.Retrieval.ContextTokens),
		},
		Chunker: domain.ChunkerSettings{
			MaxChars: s.getInt(keyChunkerMaxChars, defaults.Chunker.MaxChars),
		},
		Ingest: domain.IngestSettings{
			Concurrency: s.getInt(keyIngestConcurrency, defaults.Ingest.Concurrency),
		},
		RateLimit: domain.RateLimitSettings{
			RequestsPerSecond: s.getFloat(keyRateLimitRPS, defaults.RateLimit.RequestsPerSecond),
		},
	}
}

// applyEnv overlays environment variables onto settings.
// API keys are matched to whichever sections use the keyed provider.
func (s *SettingsService) applyEnv(settings *domain.AppSettings) {
	keys := map[domain.AIProvider]string{
		domain.AIProviderOpenAI:    EnvOpenAIAPIKey,
		domain.AIProviderAnthropic: EnvAnthropicAPIKey,
		domain.AIProviderGemini:    EnvGeminiAPIKey,
	}
	override := func(provider domain.AIProvider, dst *string) {
		name, ok := keys[provider]
		if !ok {
			return
		}
		if v, ok := s.lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	override(settings.Embedding.Provider, &settings.Embedding.APIKey)
	override(settings.LLM.Provider, &settings.LLM.APIKey)
	override(settings.Converter.Provider, &settings.Converter.APIKey)

	if v, ok := s.lookupEnv(EnvOllamaURL); ok && v != "" {
		if settings.Embedding.Provider == domain.AIProviderOllama {
			settings.Embedding.BaseURL = v
		}
		if settings.LLM.Provider == domain.AIProviderOllama {
			settings.LLM.BaseURL = v
		}
	}
	if v, ok := s.lookupEnv(EnvOllamaModel); ok && v != "" && settings.LLM.Provider == domain.AIProviderOllama {
		settings.LLM.Model = v
	}
	if v, ok := s.lookupEnv(EnvPostgresDSN); ok && v != "" {
		settings.Store.DSN = v
	}
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key string
		val any
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMSpecialistModel, settings.LLM.SpecialistModel},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyLLMTemperature, settings.LLM.Temperature},
		{keyConverterProvider, settings.Converter.Provider.String()},
		{keyConverterModel, settings.Converter.Model},
		{keyStoreBackend, settings.Store.Backend.String()},
		{keyStorePath, settings.Store.Path},
		{keyStoreDSN, settings.Store.DSN},
		{keyPerQueryLimit, settings.Retrieval.PerQueryLimit},
		{keyDedupPrefix, settings.Retrieval.DedupPrefix},
		{keyRelaxedMaxDistance, settings.Retrieval.RelaxedMaxDistance},
		{keyContextTokens, settings.Retrieval.ContextTokens},
		{keyChunkerMaxChars, settings.Chunker.MaxChars},
		{keyIngestConcurrency, settings.Ingest.Concurrency},
		{keyRateLimitRPS, settings.RateLimit.RequestsPerSecond},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.val); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// API keys are only written when present so an env-only key is never
	// cleared from the file.
	secrets := []struct {
		key string
		val string
	}{
		{keyEmbedAPIKey, settings.Embedding.APIKey},
		{keyLLMAPIKey, settings.LLM.APIKey},
		{keyConverterAPIKey, settings.Converter.APIKey},
	}
	for _, v := range secrets {
		if v.val == "" {
			continue
		}
		if err := s.configStore.Set(v.key, v.val); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid embedding provider: %s", domain.ErrInvalidInput, provider)
	}

	valid := false
	for _, p := range domain.AllEmbeddingProviders() {
		if p == provider {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: provider %s does not support embeddings", domain.ErrInvalidInput, provider)
	}

	if provider.RequiresAPIKey() && apiKey == "" {
		if _, ok := s.envKey(provider); !ok {
			return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
		}
	}

	settings := s.stored()
	settings.Embedding.Provider = provider

	if model != "" {
		settings.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		settings.Embedding.Model = defaultModel
	}

	if provider.IsLocal() {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.Embedding.BaseURL = ""
	}

	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
// An empty specialistModel uses the provider's default specialist model.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, specialistModel, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid LLM provider: %s", domain.ErrInvalidInput, provider)
	}

	if provider.RequiresAPIKey() && apiKey == "" {
		if _, ok := s.envKey(provider); !ok {
			return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
		}
	}

	settings := s.stored()
	settings.LLM.Provider = provider

	if model != "" {
		settings.LLM.Model = model
	} else if defaultModel, ok := domain.DefaultLLMModels()[provider]; ok {
		settings.LLM.Model = defaultModel
	}

	if specialistModel != "" {
		settings.LLM.SpecialistModel = specialistModel
	} else if defaultModel, ok := domain.DefaultSpecialistModels()[provider]; ok {
		settings.LLM.SpecialistModel = defaultModel
	}

	if provider.IsLocal() {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.LLM.BaseURL = ""
	}

	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// SetConverter configures PDF conversion.
// An empty provider disables conversion; only Gemini is supported.
func (s *SettingsService) SetConverter(provider domain.AIProvider, model, apiKey string) error {
	if provider != "" && provider != domain.AIProviderGemini {
		return fmt.Errorf("%w: PDF conversion requires gemini, got %s", domain.ErrInvalidInput, provider)
	}
	if provider != "" && apiKey == "" {
		if _, ok := s.envKey(provider); !ok {
			return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
		}
	}

	settings := s.stored()
	settings.Converter.Provider = provider
	if model != "" {
		settings.Converter.Model = model
	}
	settings.Converter.APIKey = apiKey

	return s.Save(settings)
}

// SetStoreBackend configures the chunk store backend.
// Location is a file path for sqlite and a DSN for pgvector.
func (s *SettingsService) SetStoreBackend(backend domain.StoreBackend, location string) error {
	if !backend.IsValid() {
		return fmt.Errorf("%w: invalid store backend: %s", domain.ErrInvalidInput, backend)
	}

	settings := s.stored()
	settings.Store.Backend = backend

	switch backend {
	case domain.StoreBackendSQLite:
		if location != "" {
			settings.Store.Path = location
		}
	case domain.StoreBackendPGVector:
		if location == "" {
			if _, ok := s.lookupEnv(EnvPostgresDSN); !ok {
				return fmt.Errorf("%w: pgvector requires a DSN", domain.ErrInvalidInput)
			}
		}
		settings.Store.DSN = location
	case domain.StoreBackendMemory:
	}

	return s.Save(settings)
}

// Validate checks that current settings are internally consistent.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if err := s.validate.Struct(settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate settings: %w", err)
	}

	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrInvalidInput, settings.Embedding.Provider)
	}

	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

func (s *SettingsService) envKey(provider domain.AIProvider) (string, bool) {
	var name string
	switch provider {
	case domain.AIProviderOpenAI:
		name = EnvOpenAIAPIKey
	case domain.AIProviderAnthropic:
		name = EnvAnthropicAPIKey
	case domain.AIProviderGemini:
		name = EnvGeminiAPIKey
	default:
		return "", false
	}
	v, ok := s.lookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Helper methods for reading config with defaults.

// getString returns defaultVal only when key is unset, so an explicitly
// saved empty value survives a round trip.
func (s *SettingsService) getString(key, defaultVal string) string {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	str, ok := val.(string)
	if !ok {
		return defaultVal
	}
	return str
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return defaultVal
	}
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(defaultVal domain.StoreBackend) domain.StoreBackend {
	val := s.configStore.GetString(keyStoreBackend)
	if val == "" {
		return defaultVal
	}
	backend := domain.StoreBackend(val)
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}
