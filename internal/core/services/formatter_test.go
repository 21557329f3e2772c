package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// runeCounter counts one token per rune to keep budgets predictable.
func runeCounter(s string) int {
	return utf8.RuneCountInString(s)
}

func TestContextFormatter_Result(t *testing.T) {
	f := NewContextFormatter(0)
	got := f.Result(result("c1", "Net profit AED 4,902 million", 0.1))
	assert.Equal(t,
		"Source: FAB-FS-Q1-2025-English.pdf | Section: Statement of profit or loss | Page: 3\n"+
			"Content: Net profit AED 4,902 million",
		got)
}

func TestContextFormatter_ItemsEmpty(t *testing.T) {
	assert.Equal(t, "No context gathered yet.", NewContextFormatter(0).Items(nil))
}

func TestContextFormatter_Items(t *testing.T) {
	items := []domain.ContextItem{
		domain.RetrievalContext{Step: "RETRIEVE: a", Results: []domain.RetrievalResult{result("c1", "alpha", 0.1)}},
		domain.RetrievalContext{Step: "RETRIEVE: b", Timestamp: 1},
		domain.CalculationContext{
			Step: "CALCULATE: growth",
			Result: domain.CalculationResult{
				CalculationProposal: domain.CalculationProposal{FormulaUsed: "a/b", Units: "%"},
				ValidatedResult:     f64(12.5),
				ExecutionSuccess:    true,
			},
			Timestamp: 2,
		},
		domain.CalculationContext{
			Step:      "CALCULATE: broken",
			Result:    domain.CalculationResult{ExecutionError: "unbound"},
			Timestamp: 3,
		},
		domain.SynthesisContext{Answer: "done", Timestamp: 4},
	}

	got := NewContextFormatter(0).Items(items)
	blocks := strings.Split(got, blockSep)
	assert.Len(t, blocks, 5)
	assert.Contains(t, blocks[0], "Content: alpha")
	assert.Equal(t, `Step "RETRIEVE: b" found no results.`, blocks[1])
	assert.Equal(t, `Calculation "CALCULATE: growth": a/b = 12.5 %`, blocks[2])
	assert.Equal(t, `Calculation "CALCULATE: broken" failed: unbound`, blocks[3])
	assert.Equal(t, "Answer: done", blocks[4])
}

func TestContextFormatter_Budget(t *testing.T) {
	f := &ContextFormatter{maxTokens: 10, count: runeCounter}

	got := f.fit([]string{"aaaaaa", "bbbb", "cccc"})
	assert.Equal(t, "aaaaaa"+blockSep+"bbbb"+blockSep+"[1 more results omitted]", got)
}

func TestContextFormatter_BudgetKeepsFirstBlock(t *testing.T) {
	f := &ContextFormatter{maxTokens: 2, count: runeCounter}

	got := f.fit([]string{"a long first block", "b"})
	assert.True(t, strings.HasPrefix(got, "a long first block"))
	assert.Contains(t, got, "[1 more results omitted]")
}

func TestContextFormatter_NoBudget(t *testing.T) {
	f := &ContextFormatter{count: runeCounter}
	assert.Equal(t, "a"+blockSep+"b", f.fit([]string{"a", "b"}))
}

func TestContextFormatter_Calculations(t *testing.T) {
	f := NewContextFormatter(0)
	assert.Equal(t, "{}", f.Calculations(nil))

	got := f.Calculations(map[string]domain.CalculationResult{
		"step_1": {ValidatedResult: f64(3), ExecutionSuccess: true},
	})
	assert.Contains(t, got, `"step_1"`)
	assert.Contains(t, got, `"validated_result": 3`)
}
