package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
)

// flakyLLM fails with ErrRateLimited for the first failures calls.
type flakyLLM struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *flakyLLM) Generate(context.Context, string, driven.GenerateOptions) (string, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return "", fmt.Errorf("provider: %w", domain.ErrRateLimited)
	}
	if f.err != nil {
		return "", f.err
	}
	return "ok", nil
}
func (f *flakyLLM) ModelName() string          { return "flaky" }
func (f *flakyLLM) Ping(context.Context) error { return nil }
func (f *flakyLLM) Close() error               { return nil }

type countingEmbedder struct {
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	c.calls.Add(1)
	return []float32{1}, nil
}
func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}
func (c *countingEmbedder) Dimensions() int             { return 1 }
func (c *countingEmbedder) ModelName() string           { return "counting" }
func (c *countingEmbedder) Ping(context.Context) error  { return nil }
func (c *countingEmbedder) Close() error                { return nil }

func TestLLM_RetriesOnRateLimit(t *testing.T) {
	next := &flakyLLM{failures: 2}
	l := NewLLM(next, NewLimiter(Config{Backoff: time.Millisecond}))

	out, err := l.Generate(context.Background(), "p", driven.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), next.calls.Load())
	assert.Equal(t, "flaky", l.ModelName())
}

func TestLLM_GivesUpAfterMaxRetries(t *testing.T) {
	next := &flakyLLM{failures: 10}
	l := NewLLM(next, NewLimiter(Config{Backoff: time.Millisecond, MaxRetries: 1}))

	_, err := l.Generate(context.Background(), "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestLLM_NoRetryOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	next := &flakyLLM{err: boom}
	l := NewLLM(next, NewLimiter(Config{Backoff: time.Millisecond}))

	_, err := l.Generate(context.Background(), "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestLLM_RetriesDisabled(t *testing.T) {
	next := &flakyLLM{failures: 1}
	l := NewLLM(next, NewLimiter(Config{MaxRetries: -1}))

	_, err := l.Generate(context.Background(), "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestLimiter_Throttles(t *testing.T) {
	emb := &countingEmbedder{}
	e := NewEmbedding(emb, NewLimiter(Config{RequestsPerSecond: 20, BurstSize: 1}))
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		_, err := e.Embed(ctx, "x")
		require.NoError(t, err)
	}
	// First call uses the burst token; two more need ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(3), emb.calls.Load())
}

func TestLimiter_Unlimited(t *testing.T) {
	emb := &countingEmbedder{}
	e := NewEmbedding(emb, NewLimiter(Config{}))

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, e.Dimensions())
	assert.Equal(t, "counting", e.ModelName())
	assert.NoError(t, e.Ping(context.Background()))
	assert.NoError(t, e.Close())
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := NewLimiter(Config{Backoff: time.Hour})
	l.recordRateLimited()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}
