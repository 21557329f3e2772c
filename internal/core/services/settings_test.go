package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(vals map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	}
}

func newTestSettings(store *mapConfig, opts ...SettingsOption) *SettingsService {
	return NewSettingsService(store, nil, append([]SettingsOption{WithEnvLookup(noEnv)}, opts...)...)
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := newTestSettings(newMapConfig())

	settings, err := service.Get()
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultAppSettings(), *settings)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := newMapConfig()
	_ = store.Set("embedding.provider", "openai")
	_ = store.Set("embedding.model", "text-embedding-3-large")
	_ = store.Set("llm.temperature", 0.5)
	_ = store.Set("store.backend", "memory")
	_ = store.Set("retrieval.per_query_limit", int64(8))
	_ = store.Set("chunker.max_chars", 900)

	settings, err := newTestSettings(store).Get()
	require.NoError(t, err)

	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-large", settings.Embedding.Model)
	assert.InDelta(t, 0.5, settings.LLM.Temperature, 1e-9)
	assert.Equal(t, domain.StoreBackendMemory, settings.Store.Backend)
	assert.Equal(t, 8, settings.Retrieval.PerQueryLimit)
	assert.Equal(t, 900, settings.Chunker.MaxChars)
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	store := newMapConfig()
	_ = store.Set("embedding.provider", "invalid_provider")
	_ = store.Set("store.backend", "cassandra")
	_ = store.Set("llm.temperature", "hot")

	settings, err := newTestSettings(store).Get()
	require.NoError(t, err)

	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Embedding.Provider, settings.Embedding.Provider)
	assert.Equal(t, defaults.Store.Backend, settings.Store.Backend)
	assert.InDelta(t, defaults.LLM.Temperature, settings.LLM.Temperature, 1e-9)
}

func TestSettingsService_Get_EnvOverrides(t *testing.T) {
	store := newMapConfig()
	_ = store.Set("llm.provider", "openai")
	_ = store.Set("llm.api_key", "from-file")
	_ = store.Set("converter.provider", "gemini")

	service := NewSettingsService(store, nil, WithEnvLookup(envOf(map[string]string{
		EnvOpenAIAPIKey: "from-env",
		EnvGeminiAPIKey: "gem-key",
		EnvOllamaURL:    "http://ollama:11434",
		EnvPostgresDSN:  "postgres://localhost/finqa",
	})))

	settings, err := service.Get()
	require.NoError(t, err)

	assert.Equal(t, "from-env", settings.LLM.APIKey)
	assert.Equal(t, "gem-key", settings.Converter.APIKey)
	assert.Equal(t, "http://ollama:11434", settings.Embedding.BaseURL)
	assert.Empty(t, settings.LLM.BaseURL, "ollama url only applies to ollama providers")
	assert.Equal(t, "postgres://localhost/finqa", settings.Store.DSN)

	// The stored value is untouched.
	assert.Equal(t, "from-file", store.GetString("llm.api_key"))
}

func TestSettingsService_Get_OllamaModelOverride(t *testing.T) {
	store := newMapConfig()
	_ = store.Set("llm.provider", "ollama")
	_ = store.Set("llm.model", "llama3.2")

	service := NewSettingsService(store, nil, WithEnvLookup(envOf(map[string]string{
		EnvOllamaModel: "qwen2.5",
	})))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", settings.LLM.Model)
}

func TestSettingsService_Save(t *testing.T) {
	store := newMapConfig()
	service := newTestSettings(store)

	settings := domain.DefaultAppSettings()
	settings.Embedding = domain.EmbeddingSettings{
		Provider: domain.AIProviderOpenAI,
		Model:    "text-embedding-3-small",
		APIKey:   "sk-test-key",
	}
	settings.LLM = domain.LLMSettings{
		Provider:        domain.AIProviderAnthropic,
		Model:           "claude-3-5-sonnet-latest",
		SpecialistModel: "claude-3-5-haiku-latest",
		APIKey:          "sk-ant-test",
		Temperature:     0.2,
	}
	settings.Store = domain.StoreSettings{Backend: domain.StoreBackendPGVector, DSN: "postgres://db"}

	require.NoError(t, service.Save(&settings))

	retrieved, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, settings, *retrieved)
}

func TestSettingsService_Save_DoesNotClearKeys(t *testing.T) {
	store := newMapConfig()
	_ = store.Set("llm.api_key", "keep-me")
	service := newTestSettings(store)

	settings := domain.DefaultAppSettings()
	require.NoError(t, service.Save(&settings))

	assert.Equal(t, "keep-me", store.GetString("llm.api_key"))
}

func TestSettingsService_SetEmbeddingProvider(t *testing.T) {
	tests := []struct {
		name      string
		provider  domain.AIProvider
		model     string
		apiKey    string
		wantModel string
		wantURL   string
		wantErr   bool
	}{
		{"ollama default model", domain.AIProviderOllama, "", "", "nomic-embed-text", "http://localhost:11434", false},
		{"openai explicit model", domain.AIProviderOpenAI, "text-embedding-3-large", "sk", "text-embedding-3-large", "", false},
		{"gemini default model", domain.AIProviderGemini, "", "key", "text-embedding-004", "", false},
		{"openai without key", domain.AIProviderOpenAI, "", "", "", "", true},
		{"anthropic has no embeddings", domain.AIProviderAnthropic, "", "key", "", "", true},
		{"invalid provider", domain.AIProvider("bogus"), "", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestSettings(newMapConfig())

			err := service.SetEmbeddingProvider(tt.provider, tt.model, tt.apiKey)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidInput))
				return
			}
			require.NoError(t, err)

			settings, _ := service.Get()
			assert.Equal(t, tt.provider, settings.Embedding.Provider)
			assert.Equal(t, tt.wantModel, settings.Embedding.Model)
			assert.Equal(t, tt.wantURL, settings.Embedding.BaseURL)
		})
	}
}

func TestSettingsService_SetEmbeddingProvider_KeyFromEnv(t *testing.T) {
	service := NewSettingsService(newMapConfig(), nil,
		WithEnvLookup(envOf(map[string]string{EnvOpenAIAPIKey: "sk-env"})))

	require.NoError(t, service.SetEmbeddingProvider(domain.AIProviderOpenAI, "", ""))

	settings, _ := service.Get()
	assert.Equal(t, "sk-env", settings.Embedding.APIKey)
}

func TestSettingsService_SetLLMProvider(t *testing.T) {
	service := newTestSettings(newMapConfig())

	require.NoError(t, service.SetLLMProvider(domain.AIProviderOpenAI, "", "", "sk"))

	settings, _ := service.Get()
	assert.Equal(t, domain.AIProviderOpenAI, settings.LLM.Provider)
	assert.Equal(t, "gpt-4", settings.LLM.Model)
	assert.Equal(t, "gpt-3.5-turbo", settings.LLM.SpecialistModel)
	assert.Equal(t, "gpt-3.5-turbo", settings.LLM.Specialist().Model)
	assert.Empty(t, settings.LLM.BaseURL)
}

func TestSettingsService_SetLLMProvider_Ollama(t *testing.T) {
	service := newTestSettings(newMapConfig())

	require.NoError(t, service.SetLLMProvider(domain.AIProviderOllama, "llama3.1", "llama3.2", ""))

	settings, _ := service.Get()
	assert.Equal(t, "llama3.1", settings.LLM.Model)
	assert.Equal(t, "llama3.2", settings.LLM.SpecialistModel)
	assert.Equal(t, "http://localhost:11434", settings.LLM.BaseURL)
}

func TestSettingsService_SetLLMProvider_Errors(t *testing.T) {
	service := newTestSettings(newMapConfig())

	assert.ErrorIs(t, service.SetLLMProvider("bogus", "", "", ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, service.SetLLMProvider(domain.AIProviderAnthropic, "", "", ""), domain.ErrInvalidInput)
}

func TestSettingsService_SetStoreBackend(t *testing.T) {
	store := newMapConfig()
	service := newTestSettings(store)

	require.NoError(t, service.SetStoreBackend(domain.StoreBackendSQLite, "/tmp/chunks.db"))
	settings, _ := service.Get()
	assert.Equal(t, domain.StoreBackendSQLite, settings.Store.Backend)
	assert.Equal(t, "/tmp/chunks.db", settings.Store.Path)

	require.NoError(t, service.SetStoreBackend(domain.StoreBackendPGVector, "postgres://db"))
	settings, _ = service.Get()
	assert.Equal(t, domain.StoreBackendPGVector, settings.Store.Backend)
	assert.Equal(t, "postgres://db", settings.Store.DSN)

	assert.ErrorIs(t, service.SetStoreBackend(domain.StoreBackendPGVector, ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, service.SetStoreBackend("cassandra", ""), domain.ErrInvalidInput)
}

func TestSettingsService_SetConverter(t *testing.T) {
	service := newTestSettings(newMapConfig())

	require.NoError(t, service.SetConverter(domain.AIProviderGemini, "gemini-2.5-pro", "g-key"))
	settings, _ := service.Get()
	assert.Equal(t, domain.AIProviderGemini, settings.Converter.Provider)
	assert.Equal(t, "gemini-2.5-pro", settings.Converter.Model)
	assert.True(t, settings.Converter.IsConfigured())

	assert.ErrorIs(t, service.SetConverter(domain.AIProviderOpenAI, "", "sk"), domain.ErrInvalidInput)
	assert.ErrorIs(t, service.SetConverter(domain.AIProviderGemini, "", ""), domain.ErrInvalidInput)

	require.NoError(t, service.SetConverter("", "", ""))
	settings, _ = service.Get()
	assert.False(t, settings.Converter.IsConfigured())
}

func TestSettingsService_SetConverter_KeyFromEnv(t *testing.T) {
	service := newTestSettings(newMapConfig(),
		WithEnvLookup(envOf(map[string]string{EnvGeminiAPIKey: "from-env"})))

	require.NoError(t, service.SetConverter(domain.AIProviderGemini, "", ""))
	settings, _ := service.Get()
	assert.Equal(t, "from-env", settings.Converter.APIKey)
	assert.Equal(t, "gemini-2.5-flash", settings.Converter.Model)
}

func TestSettingsService_Validate(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{"defaults", nil, false},
		{"pgvector without dsn", map[string]any{"store.backend": "pgvector"}, true},
		{"chunk budget too small", map[string]any{"chunker.max_chars": 10}, true},
		{"limit above bound", map[string]any{"retrieval.per_query_limit": 500}, true},
		{"embedding key missing", map[string]any{"embedding.provider": "openai"}, true},
		{"temperature out of range", map[string]any{"llm.temperature": 3.0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMapConfig()
			for k, v := range tt.values {
				_ = store.Set(k, v)
			}

			err := newTestSettings(store).Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSettingsService_GetDefaults(t *testing.T) {
	service := newTestSettings(newMapConfig())
	assert.Equal(t, domain.DefaultAppSettings(), service.GetDefaults())
}

type recordingValidator struct {
	embedding *domain.EmbeddingSettings
	llm       *domain.LLMSettings
	err       error
}

func (v *recordingValidator) ValidateEmbedding(cfg *domain.EmbeddingSettings) error {
	v.embedding = cfg
	return v.err
}

func (v *recordingValidator) ValidateLLM(cfg *domain.LLMSettings) error {
	v.llm = cfg
	return v.err
}

func TestSettingsService_ValidateConfigs(t *testing.T) {
	validator := &recordingValidator{err: domain.ErrLLMUnavailable}
	service := NewSettingsService(newMapConfig(), validator, WithEnvLookup(noEnv))

	assert.ErrorIs(t, service.ValidateLLMConfig(), domain.ErrLLMUnavailable)
	require.NotNil(t, validator.llm)

	assert.ErrorIs(t, service.ValidateEmbeddingConfig(), domain.ErrLLMUnavailable)
	require.NotNil(t, validator.embedding)
	assert.Equal(t, domain.AIProviderOllama, validator.embedding.Provider)
}

func TestSettingsService_ValidateConfigs_NoValidator(t *testing.T) {
	service := newTestSettings(newMapConfig())
	assert.NoError(t, service.ValidateLLMConfig())
	assert.NoError(t, service.ValidateEmbeddingConfig())
}
