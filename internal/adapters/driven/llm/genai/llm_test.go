package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
)

func TestNewService(t *testing.T) {
	_, err := NewService(context.Background(), Config{})
	assert.Error(t, err)

	s, err := NewService(context.Background(), Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, s.ModelName())
	assert.NoError(t, s.Close())
}

func TestGenerateConfig(t *testing.T) {
	cfg := generateConfig(driven.GenerateOptions{})
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, float32(0), *cfg.Temperature)
	assert.Zero(t, cfg.MaxOutputTokens)
	assert.Empty(t, cfg.StopSequences)
	assert.Empty(t, cfg.ResponseMIMEType)

	cfg = generateConfig(driven.GenerateOptions{
		MaxTokens:   512,
		Temperature: 0.3,
		StopWords:   []string{"END"},
		JSON:        true,
	})
	assert.InDelta(t, 0.3, float64(*cfg.Temperature), 1e-6)
	assert.Equal(t, int32(512), cfg.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, cfg.StopSequences)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
}

func TestClassify(t *testing.T) {
	err := classify(errors.New("Error 429, Message: quota, Status: RESOURCE_EXHAUSTED"))
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	err = classify(errors.New("Error 400, Message: bad request"))
	assert.NotErrorIs(t, err, domain.ErrRateLimited)
	assert.Contains(t, err.Error(), "bad request")
}
