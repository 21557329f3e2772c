package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/logger"
)

const blockSep = "\n\n"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens counts gpt-3.5-turbo tokens, or estimates four runes per token
// when the encoding cannot be loaded.
func countTokens(s string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
		if err != nil {
			logger.Debug("tiktoken unavailable, estimating tokens: %v", err)
			return
		}
		encoding = enc
	})
	if encoding == nil {
		return (utf8.RuneCountInString(s) + 3) / 4
	}
	return len(encoding.Encode(s, nil, nil))
}

// ContextFormatter renders accumulated context as prompt text.
// When a token budget is set, trailing blocks that do not fit are omitted.
type ContextFormatter struct {
	maxTokens int
	count     func(string) int
}

// NewContextFormatter creates a formatter. maxTokens of zero disables the budget.
func NewContextFormatter(maxTokens int) *ContextFormatter {
	return &ContextFormatter{maxTokens: maxTokens, count: countTokens}
}

// Result renders a single search hit.
func (f *ContextFormatter) Result(r domain.RetrievalResult) string {
	return fmt.Sprintf("Source: %s | Section: %s | Page: %d\nContent: %s",
		r.Metadata.SourceDocument, r.Metadata.SectionName, r.Metadata.PageNumber, r.Content)
}

// Results renders search hits in order.
func (f *ContextFormatter) Results(results []domain.RetrievalResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, f.Result(r))
	}
	return f.fit(blocks)
}

// Items renders context items in append order.
func (f *ContextFormatter) Items(items []domain.ContextItem) string {
	if len(items) == 0 {
		return "No context gathered yet."
	}
	blocks := make([]string, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case domain.RetrievalContext:
			for _, r := range it.Results {
				blocks = append(blocks, f.Result(r))
			}
			if len(it.Results) == 0 {
				blocks = append(blocks, fmt.Sprintf("Step %q found no results.", it.Step))
			}
		case domain.CalculationContext:
			blocks = append(blocks, formatCalculation(it.Step, it.Result))
		case domain.SynthesisContext:
			blocks = append(blocks, "Answer: "+it.Answer)
		default:
			panic(fmt.Sprintf("unhandled context item %T", item))
		}
	}
	return f.fit(blocks)
}

// Calculations renders the calculation results keyed by step.
func (f *ContextFormatter) Calculations(results map[string]domain.CalculationResult) string {
	if len(results) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func formatCalculation(step string, r domain.CalculationResult) string {
	if !r.ExecutionSuccess {
		return fmt.Sprintf("Calculation %q failed: %s", step, r.ExecutionError)
	}
	value := "n/a"
	if r.ValidatedResult != nil {
		value = fmt.Sprintf("%g", *r.ValidatedResult)
	}
	return fmt.Sprintf("Calculation %q: %s = %s %s", step, r.FormulaUsed, value, r.Units)
}

// fit joins blocks while they fit the token budget.
// The first block is always kept.
func (f *ContextFormatter) fit(blocks []string) string {
	if f.maxTokens <= 0 || len(blocks) == 0 {
		return strings.Join(blocks, blockSep)
	}
	used := 0
	kept := 0
	for i, b := range blocks {
		n := f.count(b)
		if i > 0 && used+n > f.maxTokens {
			break
		}
		used += n
		kept++
	}
	out := strings.Join(blocks[:kept], blockSep)
	if omitted := len(blocks) - kept; omitted > 0 {
		logger.Debug("Context budget of %d tokens reached, omitting %d blocks", f.maxTokens, omitted)
		out += fmt.Sprintf("%s[%d more results omitted]", blockSep, omitted)
	}
	return out
}
