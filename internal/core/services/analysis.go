package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driving"
	"github.com/custodia-labs/finqa/internal/logger"
)

// Ensure AnalysisService implements the interfaces.
var (
	_ driving.AnalysisService = (*AnalysisService)(nil)
	_ driving.SearchService   = (*AnalysisService)(nil)
)

// Search limits accepted from external callers.
const (
	MinSearchLimit = 1
	MaxSearchLimit = 100
)

const (
	previewRunes      = 100
	noAnswer          = "No answer generated"
	errorAnswerPrefix = "Error processing query: "
)

// AnalysisService answers questions through the workflow and exposes
// the chunk store to callers.
type AnalysisService struct {
	workflow *Workflow
	store    *ChunkStore
}

// NewAnalysisService creates an analysis service.
// A nil workflow leaves Analyze unavailable while search and stats work.
func NewAnalysisService(workflow *Workflow, store *ChunkStore) *AnalysisService {
	return &AnalysisService{workflow: workflow, store: store}
}

// Analyze runs the workflow for query and shapes the response.
func (s *AnalysisService) Analyze(ctx context.Context, query string) domain.QueryResponse {
	query = strings.TrimSpace(query)
	if query == "" {
		return errorResponse(query, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput))
	}
	if s.workflow == nil {
		return errorResponse(query, fmt.Errorf("%w: no LLM provider configured", domain.ErrLLMUnavailable))
	}

	logger.Section("Analyze")
	start := time.Now()
	state, err := s.workflow.Run(ctx, query)
	if err != nil {
		logger.Error("Query failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return errorResponse(query, err)
	}
	logger.Info("Query answered in %s with %d context items", time.Since(start).Round(time.Millisecond), len(state.Context))

	answer := state.FinalAnswer
	if answer == "" {
		answer = noAnswer
	}
	history := state.RetrievalHistory
	if history == nil {
		history = []domain.RetrievalRecord{}
	}
	return domain.QueryResponse{
		Query:                 query,
		FinalAnswer:           answer,
		SourcesUsed:           sourcesOf(state.Context),
		CalculationsPerformed: state.CalculationResults,
		RetrievalSteps:        history,
		Validation:            state.Validation,
		ProcessingSteps:       len(state.Context),
		Success:               true,
	}
}

func errorResponse(query string, err error) domain.QueryResponse {
	return domain.QueryResponse{
		Query:       query,
		FinalAnswer: errorAnswerPrefix + err.Error(),
		Success:     false,
		Error:       err.Error(),
	}
}

// sourcesOf lists every retrieved chunk in context order.
func sourcesOf(items []domain.ContextItem) []domain.Source {
	sources := []domain.Source{}
	for _, item := range items {
		rc, ok := item.(domain.RetrievalContext)
		if !ok {
			continue
		}
		for _, r := range rc.Results {
			sources = append(sources, domain.Source{
				Document:       r.Metadata.SourceDocument,
				Section:        r.Metadata.SectionName,
				Page:           r.Metadata.PageNumber,
				Quarter:        r.Metadata.Quarter,
				Year:           r.Metadata.Year,
				ContentPreview: preview(r.Content, previewRunes),
			})
		}
	}
	return sources
}

func preview(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}

// Stats describes the chunk store and the number of indexed sections.
func (s *AnalysisService) Stats(ctx context.Context) (domain.SystemStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return domain.SystemStats{}, fmt.Errorf("store stats: %w", err)
	}
	sections, err := s.store.SectionIndex(ctx)
	if err != nil {
		return domain.SystemStats{}, fmt.Errorf("section index: %w", err)
	}
	return domain.SystemStats{StoreStats: stats, SectionsIndexed: len(sections)}, nil
}

// Documents lists the ingested documents and section names.
func (s *AnalysisService) Documents(ctx context.Context) (domain.DocumentListing, error) {
	sections, err := s.store.SectionIndex(ctx)
	if err != nil {
		return domain.DocumentListing{}, fmt.Errorf("section index: %w", err)
	}
	docs, err := s.store.Documents(ctx)
	if err != nil {
		return domain.DocumentListing{}, fmt.Errorf("list documents: %w", err)
	}

	names := make([]string, 0, len(sections))
	total := 0
	for name, ids := range sections {
		names = append(names, name)
		total += len(ids)
	}
	sort.Strings(names)

	return domain.DocumentListing{
		TotalSections:   len(sections),
		SectionNames:    names,
		TotalChunks:     total,
		DocumentsLoaded: docs,
	}, nil
}

// Search runs a direct similarity search.
func (s *AnalysisService) Search(
	ctx context.Context, query string, filters domain.Filters, limit int,
) ([]domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput)
	}
	if limit < MinSearchLimit || limit > MaxSearchLimit {
		return nil, fmt.Errorf("%w: limit must be between %d and %d, got %d",
			domain.ErrInvalidInput, MinSearchLimit, MaxSearchLimit, limit)
	}
	return s.store.Search(ctx, query, filters, limit)
}
