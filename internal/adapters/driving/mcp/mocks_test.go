package mcp

import (
	"context"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.RetrievalResult
	err     error

	gotQuery   string
	gotFilters domain.Filters
	gotLimit   int
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	filters domain.Filters,
	limit int,
) ([]domain.RetrievalResult, error) {
	m.gotQuery = query
	m.gotFilters = filters
	m.gotLimit = limit
	return m.results, m.err
}

// mockAnalysisService is a mock implementation of driving.AnalysisService.
type mockAnalysisService struct {
	response domain.QueryResponse
	stats    domain.SystemStats
	listing  domain.DocumentListing
	err      error

	gotQuery string
}

func (m *mockAnalysisService) Analyze(_ context.Context, query string) domain.QueryResponse {
	m.gotQuery = query
	return m.response
}

func (m *mockAnalysisService) Stats(_ context.Context) (domain.SystemStats, error) {
	return m.stats, m.err
}

func (m *mockAnalysisService) Documents(_ context.Context) (domain.DocumentListing, error) {
	return m.listing, m.err
}
