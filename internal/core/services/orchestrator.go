package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/logger"
)

// Orchestrator decomposes a query into plan steps.
type Orchestrator struct {
	llm LLMConfig
}

// NewOrchestrator creates an orchestrator. It should use the stronger
// of the configured models.
func NewOrchestrator(llm LLMConfig) *Orchestrator {
	return &Orchestrator{llm: llm}
}

// CreatePlan returns the ordered steps for query.
// An unusable response yields domain.FallbackPlan.
func (o *Orchestrator) CreatePlan(ctx context.Context, query string) []domain.PlanStep {
	call := structured[[]domain.PlanStep]{
		prompt:   driven.PromptPlan,
		parse:    parsePlan,
		fallback: func(error) []domain.PlanStep { return domain.FallbackPlan() },
	}
	plan, _ := call.run(ctx, o.llm.completer(), map[string]any{"Query": query})
	logger.Debug("Plan for %q: %d steps", query, len(plan))
	return plan
}

// parsePlan reads a JSON array of step strings. Output without brackets
// is read as one step per non-blank line.
func parsePlan(raw string) ([]domain.PlanStep, error) {
	var lines []string
	if body, err := extractJSON(raw, '[', ']'); err == nil {
		if err := json.Unmarshal([]byte(body), &lines); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
	} else {
		lines = strings.Split(raw, "\n")
	}

	plan := make([]domain.PlanStep, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			plan = append(plan, domain.PlanStep(l))
		}
	}
	if len(plan) == 0 {
		return nil, errors.New("empty plan")
	}
	return plan, nil
}
