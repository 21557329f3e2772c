// Package mcp provides an MCP (Model Context Protocol) server adapter for finqa.
// It lets AI assistants ask financial questions and search the indexed filings.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrAnalysisUnavailable is returned by analyze_query when no LLM is configured.
var ErrAnalysisUnavailable = errors.New("mcp: question answering is not configured")
