package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/core/services/arith"
	"github.com/custodia-labs/finqa/internal/logger"
)

// figureKeywords maps a hint name to the phrases that introduce it.
var figureKeywords = []struct {
	name     string
	keywords []string
}{
	{"net_profit", []string{"net profit", "npat", "net income"}},
	{"total_assets", []string{"total assets"}},
	{"total_liabilities", []string{"total liabilities"}},
	{"shareholder_equity", []string{"shareholder equity", "shareholders' equity", "total equity"}},
	{"total_loans", []string{"total loans", "loans and advances"}},
	{"total_deposits", []string{"total deposits", "customer deposits"}},
	{"revenue", []string{"total revenue", "operating income"}},
}

// figurePatterns holds, per hint name, the amount patterns for each keyword.
var figurePatterns = compileFigurePatterns()

func compileFigurePatterns() map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(figureKeywords))
	for _, fk := range figureKeywords {
		for _, kw := range fk.keywords {
			q := regexp.QuoteMeta(kw)
			out[fk.name] = append(out[fk.name],
				regexp.MustCompile(`(?i)`+q+`.*?AED\s*([\d,]+\.?\d*)\s*(?:million|bn|billion)`),
				regexp.MustCompile(`(?i)`+q+`.*?([\d,]+\.?\d*)\s*(?:million|bn|billion)\s*AED`),
			)
		}
	}
	return out
}

// ExtractFigures finds well-known amounts stated in AED millions or
// billions in the retrieved text. The first match for each name wins.
func ExtractFigures(items []domain.ContextItem) map[string]float64 {
	figures := make(map[string]float64)
	for _, item := range items {
		rc, ok := item.(domain.RetrievalContext)
		if !ok {
			continue
		}
		for _, r := range rc.Results {
			for _, fk := range figureKeywords {
				if _, found := figures[fk.name]; found {
					continue
				}
				if v, ok := matchFigure(r.Content, figurePatterns[fk.name]); ok {
					figures[fk.name] = v
				}
			}
		}
	}
	return figures
}

func matchFigure(content string, patterns []*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

// CalculationEngine extracts figures from context, asks the LLM for a
// formula and evaluates it locally.
type CalculationEngine struct {
	llm LLMConfig
}

// NewCalculationEngine creates a calculation engine.
func NewCalculationEngine(llm LLMConfig) *CalculationEngine {
	return &CalculationEngine{llm: llm}
}

type metricsEnvelope struct {
	Metrics map[string]domain.Metric `json:"metrics"`
}

// PerformCalculation runs one calculation step. Failures are reported on
// the result and never returned as errors.
func (e *CalculationEngine) PerformCalculation(
	ctx context.Context, request string, items []domain.ContextItem,
) domain.CalculationResult {
	c := e.llm.completer()
	contextText := e.llm.formatter().Items(items)

	hints := ExtractFigures(items)
	hintsJSON, _ := json.MarshalIndent(hints, "", "  ")

	metricsCall := structured[metricsEnvelope]{
		prompt:   driven.PromptMetrics,
		json:     true,
		parse:    parseObject[metricsEnvelope],
		fallback: func(error) metricsEnvelope { return metricsEnvelope{} },
	}
	env, err := metricsCall.run(ctx, c, map[string]any{
		"Request": request,
		"Context": contextText,
		"Hints":   string(hintsJSON),
	})
	if err != nil {
		return domain.FailedCalculation(fmt.Errorf("extract metrics: %w", err))
	}
	metricsJSON, _ := json.MarshalIndent(env.Metrics, "", "  ")

	proposalCall := structured[domain.CalculationProposal]{
		prompt:   driven.PromptCalculation,
		json:     true,
		parse:    parseObject[domain.CalculationProposal],
		fallback: func(error) domain.CalculationProposal { return domain.CalculationProposal{} },
	}
	proposal, err := proposalCall.run(ctx, c, map[string]any{
		"Request": request,
		"Metrics": string(metricsJSON),
		"Context": contextText,
	})
	if err != nil {
		res := domain.FailedCalculation(fmt.Errorf("propose formula: %w", err))
		res.Metrics = env.Metrics
		return res
	}

	result := domain.CalculationResult{
		CalculationProposal: proposal,
		Metrics:             env.Metrics,
	}
	value, err := evaluate(proposal)
	if err != nil {
		logger.Warn("Calculation %q failed: %v", request, err)
		result.ExecutionError = err.Error()
		return result
	}

	if proposal.Result != nil && !closeEnough(*proposal.Result, value) {
		logger.Debug("Model reported %g for %q, evaluated %g", *proposal.Result, proposal.FormulaUsed, value)
	}
	result.ValidatedResult = &value
	result.ExecutionSuccess = true
	return result
}

func evaluate(p domain.CalculationProposal) (float64, error) {
	formula := strings.TrimSpace(p.FormulaUsed)
	if formula == "" {
		return 0, fmt.Errorf("%w: no formula proposed", domain.ErrEvaluation)
	}
	expr := arith.Substitute(formula, p.InputValues)
	v, err := arith.Eval(expr, nil)
	if err != nil {
		if errors.Is(err, arith.ErrUnbound) {
			return 0, fmt.Errorf("%w: formula %q: %w", domain.ErrEvaluation, formula, err)
		}
		return 0, fmt.Errorf("%w: evaluate %q: %w", domain.ErrEvaluation, expr, err)
	}
	return v, nil
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
