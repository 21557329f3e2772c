package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
)

// Synthesizer writes the final cited answer and grades it.
type Synthesizer struct {
	llm LLMConfig
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(llm LLMConfig) *Synthesizer {
	return &Synthesizer{llm: llm}
}

// Synthesize answers query from the gathered context. Calculation items
// are left out of the prose context; their results arrive via calcs.
func (s *Synthesizer) Synthesize(
	ctx context.Context, query string, items []domain.ContextItem, calcs map[string]domain.CalculationResult,
) (string, error) {
	f := s.llm.formatter()
	answer, err := s.llm.completer().complete(ctx, driven.PromptSynthesis, map[string]any{
		"Query":        query,
		"Context":      f.Items(proseItems(items)),
		"Calculations": f.Calculations(calcs),
	}, false)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// Validate checks answer against the full context. If the check itself
// fails, the answer is reported valid with a note.
func (s *Synthesizer) Validate(
	ctx context.Context, query, answer string, items []domain.ContextItem,
) domain.Validation {
	call := structured[domain.Validation]{
		prompt: driven.PromptValidation,
		json:   true,
		parse: func(raw string) (domain.Validation, error) {
			v, err := parseObject[domain.Validation](raw)
			if err != nil {
				return v, err
			}
			if v.UnsupportedClaims == nil {
				v.UnsupportedClaims = []string{}
			}
			if v.MissingCitations == nil {
				v.MissingCitations = []string{}
			}
			return v, nil
		},
		fallback: func(error) domain.Validation { return domain.DefaultValidation() },
	}
	v, _ := call.run(ctx, s.llm.completer(), map[string]any{
		"Query":   query,
		"Answer":  answer,
		"Context": s.llm.formatter().Items(items),
	})
	return v
}

// proseItems drops calculation intermediates.
func proseItems(items []domain.ContextItem) []domain.ContextItem {
	out := make([]domain.ContextItem, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case domain.CalculationContext:
			continue
		case domain.RetrievalContext, domain.SynthesisContext:
			out = append(out, item)
		default:
			panic(fmt.Sprintf("unhandled context item %T", item))
		}
	}
	return out
}
