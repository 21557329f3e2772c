package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/services"
)

func memorySettings() *domain.AppSettings {
	s := domain.DefaultAppSettings()
	s.Store = domain.StoreSettings{Backend: domain.StoreBackendMemory}
	return &s
}

func TestBuildServices_WithoutLLM(t *testing.T) {
	svc, err := buildServices(context.Background(), memorySettings(), t.TempDir())
	require.NoError(t, err)
	defer svc.Close()

	assert.NotNil(t, svc.Analysis)
	assert.NotNil(t, svc.Search)
	assert.NotNil(t, svc.Ingest)
	assert.Len(t, svc.Warnings, 2)

	resp := svc.Analysis.Analyze(context.Background(), "What was net profit?")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, domain.ErrLLMUnavailable.Error())
}

func TestBuildServices_WithLLM(t *testing.T) {
	s := memorySettings()
	s.LLM = domain.LLMSettings{
		Provider:        domain.AIProviderOllama,
		Model:           "llama3.2",
		SpecialistModel: "qwen2.5",
		BaseURL:         "http://localhost:11434",
		Temperature:     0.1,
	}

	svc, err := buildServices(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	defer svc.Close()

	assert.Len(t, svc.Warnings, 1)
}

func TestBuildServices_NoEmbedding(t *testing.T) {
	s := memorySettings()
	s.Embedding = domain.EmbeddingSettings{}

	_, err := buildServices(context.Background(), s, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestNewLoader(t *testing.T) {
	noEnv := func(string) (string, bool) { return "", false }
	dir := t.TempDir()
	store, err := file.NewConfigStore(dir)
	require.NoError(t, err)
	settings := services.NewSettingsService(store, nil, services.WithEnvLookup(noEnv))
	require.NoError(t, settings.SetStoreBackend(domain.StoreBackendMemory, ""))

	svc, err := newLoader(settings, dir)(context.Background())
	require.NoError(t, err)
	defer svc.Close()
	assert.NotNil(t, svc.Analysis)
}
