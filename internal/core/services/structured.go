package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/core/prompts"
	"github.com/custodia-labs/finqa/internal/logger"
)

// completer renders named prompts and sends them to an LLM.
// A nil prompt store uses the built-in templates.
type completer struct {
	llm     driven.LLMService
	prompts driven.PromptStore
	opts    driven.GenerateOptions
}

// render loads and executes the template called name.
func (c completer) render(name string, data any) (string, error) {
	var tmpl string
	if c.prompts != nil {
		loaded, err := c.prompts.Load(name)
		if err != nil {
			logger.Warn("Prompt %q unavailable, using built-in: %v", name, err)
		}
		tmpl = loaded
	}
	if strings.TrimSpace(tmpl) == "" {
		def, ok := prompts.Default(name)
		if !ok {
			return "", fmt.Errorf("%w: prompt %q", domain.ErrNotFound, name)
		}
		tmpl = def
	}
	return prompts.Render(name, tmpl, data)
}

// complete renders the prompt and returns the raw completion.
func (c completer) complete(ctx context.Context, name string, data any, jsonMode bool) (string, error) {
	if c.llm == nil {
		return "", domain.ErrLLMUnavailable
	}
	prompt, err := c.render(name, data)
	if err != nil {
		return "", err
	}
	opts := c.opts
	opts.JSON = jsonMode
	out, err := c.llm.Generate(ctx, prompt, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrLLMUnavailable, name, err)
	}
	return out, nil
}

// structured is an LLM call whose output is parsed into T.
// When the call or the parse fails, fallback supplies a documented default.
type structured[T any] struct {
	prompt   string
	json     bool
	parse    func(raw string) (T, error)
	fallback func(err error) T
}

// run executes the call. The returned error is non-nil whenever the
// fallback was used, so callers can tell a degraded value from a parsed one.
func (s structured[T]) run(ctx context.Context, c completer, data any) (T, error) {
	raw, err := c.complete(ctx, s.prompt, data, s.json)
	if err == nil {
		var v T
		v, err = s.parse(raw)
		if err == nil {
			return v, nil
		}
		err = fmt.Errorf("%w: %s: %w", domain.ErrMalformedOutput, s.prompt, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("%s call abandoned: %v", s.prompt, err)
	} else {
		logger.Warn("%s: %v; using fallback", s.prompt, err)
	}
	return s.fallback(err), err
}

// parseJSON decodes the outermost JSON value delimited by open and closing
// from raw, ignoring markdown fences and surrounding prose.
func parseJSON[T any](raw string, open, closing byte) (T, error) {
	var v T
	body, err := extractJSON(raw, open, closing)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return v, fmt.Errorf("decode: %w", err)
	}
	return v, nil
}

func parseObject[T any](raw string) (T, error) {
	return parseJSON[T](raw, '{', '}')
}

func extractJSON(raw string, open, closing byte) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON %c...%c in output", open, closing)
	}
	return s[start : end+1], nil
}

// LLMConfig bundles what every LLM-backed workflow node needs.
type LLMConfig struct {
	LLM driven.LLMService

	// Prompts overrides the built-in templates. Optional.
	Prompts driven.PromptStore

	// Formatter renders context into prompts. Optional.
	Formatter *ContextFormatter

	// Options are applied to every completion.
	Options driven.GenerateOptions
}

func (c LLMConfig) completer() completer {
	return completer{llm: c.LLM, prompts: c.Prompts, opts: c.Options}
}

func (c LLMConfig) formatter() *ContextFormatter {
	if c.Formatter == nil {
		return NewContextFormatter(0)
	}
	return c.Formatter
}
