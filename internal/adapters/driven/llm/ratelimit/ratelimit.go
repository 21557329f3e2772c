// Package ratelimit throttles outbound AI calls.
// It decorates driven.LLMService and driven.EmbeddingService with a shared
// token bucket and backs off when a provider reports domain.ErrRateLimited.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/logger"
)

// Ensure decorators implement the interfaces.
var (
	_ driven.LLMService       = (*LLM)(nil)
	_ driven.EmbeddingService = (*Embedding)(nil)
)

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size (default: 1).
	BurstSize int

	// Backoff is the pause after a rate limit response (default: 5s).
	Backoff time.Duration

	// MaxRetries is the number of retries after a rate limit response (default: 2).
	// Negative disables retries.
	MaxRetries int
}

// Limiter is a token bucket with backoff, safe for concurrent use.
// One Limiter may be shared by several decorators to throttle a provider
// as a whole.
type Limiter struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	retryAt    time.Time
	backoff    time.Duration
	maxRetries int
}

// NewLimiter creates a limiter from cfg.
func NewLimiter(cfg Config) *Limiter {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 2
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		limiter:    rate.NewLimiter(limit, cfg.BurstSize),
		backoff:    cfg.Backoff,
		maxRetries: cfg.MaxRetries,
	}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period set by a rate limit response.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return l.limiter.Wait(ctx)
}

// recordRateLimited pushes the next allowed request past the backoff period.
func (l *Limiter) recordRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if next := time.Now().Add(l.backoff); next.After(l.retryAt) {
		l.retryAt = next
	}
}

// do runs call under the limiter, retrying on rate limit responses.
func do[T any](ctx context.Context, l *Limiter, name string, call func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := l.Wait(ctx); err != nil {
			return zero, err
		}
		out, err := call()
		if err == nil || !errors.Is(err, domain.ErrRateLimited) || attempt >= l.maxRetries {
			return out, err
		}
		logger.Warn("%s rate limited, retrying in %s (attempt %d/%d)", name, l.backoff, attempt+1, l.maxRetries)
		l.recordRateLimited()
	}
}

// LLM throttles an LLM service.
type LLM struct {
	next    driven.LLMService
	limiter *Limiter
}

// NewLLM wraps next with limiter.
func NewLLM(next driven.LLMService, limiter *Limiter) *LLM {
	return &LLM{next: next, limiter: limiter}
}

// Generate waits for the limiter, then delegates.
func (l *LLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	return do(ctx, l.limiter, "LLM "+l.next.ModelName(), func() (string, error) {
		return l.next.Generate(ctx, prompt, opts)
	})
}

// ModelName returns the wrapped model name.
func (l *LLM) ModelName() string { return l.next.ModelName() }

// Ping delegates without throttling.
func (l *LLM) Ping(ctx context.Context) error { return l.next.Ping(ctx) }

// Close closes the wrapped service.
func (l *LLM) Close() error { return l.next.Close() }

// Embedding throttles an embedding service.
type Embedding struct {
	next    driven.EmbeddingService
	limiter *Limiter
}

// NewEmbedding wraps next with limiter.
func NewEmbedding(next driven.EmbeddingService, limiter *Limiter) *Embedding {
	return &Embedding{next: next, limiter: limiter}
}

// Embed waits for the limiter, then delegates.
func (e *Embedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return do(ctx, e.limiter, "embedding "+e.next.ModelName(), func() ([]float32, error) {
		return e.next.Embed(ctx, text)
	})
}

// EmbedBatch waits for the limiter once per batch, then delegates.
func (e *Embedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return do(ctx, e.limiter, "embedding "+e.next.ModelName(), func() ([][]float32, error) {
		return e.next.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the wrapped vector size.
func (e *Embedding) Dimensions() int { return e.next.Dimensions() }

// ModelName returns the wrapped model name.
func (e *Embedding) ModelName() string { return e.next.ModelName() }

// Ping delegates without throttling.
func (e *Embedding) Ping(ctx context.Context) error { return e.next.Ping(ctx) }

// Close closes the wrapped service.
func (e *Embedding) Close() error { return e.next.Close() }
