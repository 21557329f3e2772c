package genai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbeddingService_RequiresKey(t *testing.T) {
	_, err := NewEmbeddingService(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNewEmbeddingService_Defaults(t *testing.T) {
	s, err := NewEmbeddingService(context.Background(), Config{APIKey: "k"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, s.ModelName())
	assert.Equal(t, 768, s.Dimensions())
	assert.Equal(t, DefaultBatchSize, s.batchSize)
	assert.NoError(t, s.Close())
}

func TestEmbeddingService_Config(t *testing.T) {
	native, err := NewEmbeddingService(context.Background(), Config{APIKey: "k"})
	require.NoError(t, err)
	cfg := native.config(taskQuery)
	assert.Equal(t, taskQuery, cfg.TaskType)
	assert.Nil(t, cfg.OutputDimensionality)

	truncated, err := NewEmbeddingService(context.Background(), Config{APIKey: "k", Dimensions: 256})
	require.NoError(t, err)
	cfg = truncated.config(taskDocument)
	assert.Equal(t, taskDocument, cfg.TaskType)
	require.NotNil(t, cfg.OutputDimensionality)
	assert.Equal(t, int32(256), *cfg.OutputDimensionality)
	assert.Equal(t, 256, truncated.Dimensions())
}

func TestContents(t *testing.T) {
	got := contents([]string{"a", "b"})
	require.Len(t, got, 2)
	assert.Equal(t, "user", got[1].Role)
	require.Len(t, got[1].Parts, 1)
	assert.Equal(t, "b", got[1].Parts[0].Text)
}
