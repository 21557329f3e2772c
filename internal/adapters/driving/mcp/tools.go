package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// defaultSearchLimit applies when search_chunks is called without a limit.
const defaultSearchLimit = 10

// AnalyzeInput is the input schema for the analyze_query tool.
type AnalyzeInput struct {
	Query string `json:"query" jsonschema:"the financial question to answer" validate:"required,max=2000"`
}

// AnalyzeOutput is the output schema for the analyze_query tool.
type AnalyzeOutput struct {
	Answer          string                       `json:"answer"`
	Success         bool                         `json:"success"`
	Error           string                       `json:"error,omitempty"`
	Sources         []domain.Source              `json:"sources"`
	Calculations    map[string]CalculationOutput `json:"calculations"`
	Validated       bool                         `json:"validated"`
	Validation      domain.Validation            `json:"validation"`
	ProcessingSteps int                          `json:"processing_steps"`
}

// CalculationOutput summarises one calculation step.
type CalculationOutput struct {
	Type    string  `json:"type"`
	Formula string  `json:"formula"`
	Value   float64 `json:"value"`
	Units   string  `json:"units"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
}

// SearchInput is the input schema for the search_chunks tool.
type SearchInput struct {
	Query   string            `json:"query" jsonschema:"text to search for" validate:"required,max=2000"`
	Limit   int               `json:"limit,omitempty" jsonschema:"maximum number of chunks (1-100, default 10)" validate:"omitempty,gte=1,lte=100"`
	Filters map[string]string `json:"filters,omitempty" jsonschema:"exact metadata matches such as year=2025 or quarter=Q1"`
}

// SearchOutput is the output schema for the search_chunks tool.
type SearchOutput struct {
	Results []ChunkOutput `json:"results"`
	Count   int           `json:"count"`
}

// ChunkOutput represents a single search hit.
type ChunkOutput struct {
	ID           string   `json:"id"`
	Document     string   `json:"document"`
	DocumentType string   `json:"document_type"`
	Section      string   `json:"section"`
	Page         int      `json:"page"`
	Quarter      string   `json:"quarter"`
	Year         string   `json:"year"`
	ContentType  string   `json:"content_type"`
	Distance     *float64 `json:"distance,omitempty"`
	Content      string   `json:"content"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "analyze_query",
		Description: "Answer a financial question from the indexed filings. " +
			"Plans retrieval, performs calculations and returns a cited answer.",
	}, s.handleAnalyze)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_chunks",
		Description: "Search indexed document chunks by similarity, optionally filtered by metadata",
	}, s.handleSearch)
}

// handleAnalyze handles the analyze_query tool invocation.
func (s *Server) handleAnalyze(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyzeInput,
) (*mcp.CallToolResult, AnalyzeOutput, error) {
	if s.ports.Analysis == nil {
		return nil, AnalyzeOutput{}, ErrAnalysisUnavailable
	}
	if err := s.check(input); err != nil {
		return nil, AnalyzeOutput{}, err
	}
	return nil, analyzeOutput(s.ports.Analysis.Analyze(ctx, input.Query)), nil
}

// analyzeOutput flattens a query response for tool callers.
func analyzeOutput(resp domain.QueryResponse) AnalyzeOutput {
	out := AnalyzeOutput{
		Answer:          resp.FinalAnswer,
		Success:         resp.Success,
		Error:           resp.Error,
		Sources:         resp.SourcesUsed,
		Calculations:    make(map[string]CalculationOutput, len(resp.CalculationsPerformed)),
		ProcessingSteps: resp.ProcessingSteps,
	}
	if out.Sources == nil {
		out.Sources = []domain.Source{}
	}
	for step, calc := range resp.CalculationsPerformed {
		c := CalculationOutput{
			Type:    calc.CalculationType,
			Formula: calc.FormulaUsed,
			Units:   calc.Units,
			Success: calc.ExecutionSuccess,
			Error:   calc.ExecutionError,
		}
		if calc.ValidatedResult != nil {
			c.Value = *calc.ValidatedResult
		}
		out.Calculations[step] = c
	}
	if resp.Validation != nil {
		out.Validated = true
		out.Validation = *resp.Validation
	}
	if out.Validation.UnsupportedClaims == nil {
		out.Validation.UnsupportedClaims = []string{}
	}
	if out.Validation.MissingCitations == nil {
		out.Validation.MissingCitations = []string{}
	}
	return out
}

// handleSearch handles the search_chunks tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	if err := s.check(input); err != nil {
		return nil, SearchOutput{}, err
	}
	if err := checkFilters(input.Filters); err != nil {
		return nil, SearchOutput{}, err
	}

	limit := input.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}

	results, err := s.ports.Search.Search(ctx, input.Query, domain.Filters(input.Filters), limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]ChunkOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		m := results[i].Metadata
		output.Results[i] = ChunkOutput{
			ID:           results[i].ID,
			Document:     m.SourceDocument,
			DocumentType: m.DocumentType,
			Section:      m.SectionName,
			Page:         m.PageNumber,
			Quarter:      m.Quarter,
			Year:         m.Year,
			ContentType:  string(m.ContentType),
			Distance:     results[i].Distance,
			Content:      results[i].Content,
		}
	}

	return nil, output, nil
}

// check validates tool input against its struct tags.
func (s *Server) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating input: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s' tag", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
}

// checkFilters rejects filter keys that are not metadata fields.
func checkFilters(filters map[string]string) error {
	var unknown []string
	for k := range filters {
		if !domain.IsFilterField(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: unknown filter fields %s (allowed: %s)",
		domain.ErrInvalidInput, strings.Join(unknown, ", "), strings.Join(domain.FilterFields(), ", "))
}
