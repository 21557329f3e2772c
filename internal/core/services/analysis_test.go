package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

func newTestAnalysis(t *testing.T, writer *fakeWriter, plan ...domain.PlanStep) *AnalysisService {
	t.Helper()
	store := newTestChunkStore(t)
	w := NewWorkflow(&fakePlanner{plan: plan}, &fakeRetriever{out: oneHit()}, &fakeCalculator{
		res: domain.CalculationResult{ValidatedResult: f64(1.5), ExecutionSuccess: true},
	}, writer)
	return NewAnalysisService(w, store)
}

func TestAnalysisService_Analyze(t *testing.T) {
	writer := &fakeWriter{answer: "Net profit was AED 4,902 million.", validation: domain.Validation{IsValid: true}}
	svc := newTestAnalysis(t, writer, "RETRIEVE: net profit", "CALCULATE: ratio", "SYNTHESIZE: answer")

	resp := svc.Analyze(context.Background(), "  What was net profit?  ")

	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "What was net profit?", resp.Query)
	assert.Equal(t, "Net profit was AED 4,902 million.", resp.FinalAnswer)
	assert.Equal(t, 3, resp.ProcessingSteps)
	require.Len(t, resp.SourcesUsed, 1)
	assert.Equal(t, domain.Source{
		Document:       "FAB-FS-Q1-2025-English.pdf",
		Section:        "Statement of profit or loss",
		Page:           3,
		Quarter:        "Q1",
		Year:           "2025",
		ContentPreview: "Net profit AED 4,902 million",
	}, resp.SourcesUsed[0])
	assert.Contains(t, resp.CalculationsPerformed, "step_1")
	assert.Len(t, resp.RetrievalSteps, 1)
	require.NotNil(t, resp.Validation)
	assert.True(t, resp.Validation.IsValid)
}

func TestAnalysisService_AnalyzeNoAnswer(t *testing.T) {
	svc := newTestAnalysis(t, &fakeWriter{}, "RETRIEVE: net profit")

	resp := svc.Analyze(context.Background(), "q")
	assert.True(t, resp.Success)
	assert.Equal(t, noAnswer, resp.FinalAnswer)
	assert.Nil(t, resp.Validation)
	assert.Empty(t, resp.CalculationsPerformed)
}

func TestAnalysisService_AnalyzeFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("overloaded")}
	svc := newTestAnalysis(t, writer, "SYNTHESIZE: answer")

	resp := svc.Analyze(context.Background(), "q")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "overloaded")
	assert.True(t, strings.HasPrefix(resp.FinalAnswer, errorAnswerPrefix))
}

func TestAnalysisService_AnalyzeEmptyQuery(t *testing.T) {
	svc := newTestAnalysis(t, &fakeWriter{})

	resp := svc.Analyze(context.Background(), "   ")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, domain.ErrInvalidInput.Error())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
	assert.Equal(t, "€€...", preview("€€€€", 2))
	assert.Equal(t, "exact", preview("exact", 5))
}

func TestAnalysisService_Stats(t *testing.T) {
	svc := newTestAnalysis(t, &fakeWriter{})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 2, stats.SectionsIndexed)
	assert.Equal(t, "mock-embed", stats.EmbeddingModel)
}

func TestAnalysisService_Documents(t *testing.T) {
	svc := newTestAnalysis(t, &fakeWriter{})

	listing, err := svc.Documents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, listing.TotalSections)
	assert.Equal(t, []string{"Statement of profit or loss", domain.Unknown}, listing.SectionNames)
	assert.Equal(t, 3, listing.TotalChunks)
	assert.Len(t, listing.DocumentsLoaded, 3)
}

func TestAnalysisService_Search(t *testing.T) {
	svc := newTestAnalysis(t, &fakeWriter{})
	ctx := context.Background()

	got, err := svc.Search(ctx, "net profit", domain.Filters{"year": "2025"}, 10)
	require.NoError(t, err)
	for _, r := range got {
		assert.Equal(t, "2025", r.Metadata.Year)
	}

	tests := []struct {
		name  string
		query string
		limit int
	}{
		{"empty query", " ", 5},
		{"zero limit", "q", 0},
		{"limit too large", "q", MaxSearchLimit + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(ctx, tt.query, nil, tt.limit)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestAnalysisService_StatsStoreFailure(t *testing.T) {
	w := NewWorkflow(&fakePlanner{}, &fakeRetriever{}, &fakeCalculator{}, &fakeWriter{})
	svc := NewAnalysisService(w, NewChunkStore(nil, nil))

	_, err := svc.Stats(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = svc.Documents(context.Background())
	assert.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
}

func TestAnalysisService_AnalyzeWithoutWorkflow(t *testing.T) {
	svc := NewAnalysisService(nil, newTestChunkStore(t))

	resp := svc.Analyze(context.Background(), "What was net profit?")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, domain.ErrLLMUnavailable.Error())

	_, err := svc.Search(context.Background(), "net profit", nil, 5)
	assert.NoError(t, err)
}
