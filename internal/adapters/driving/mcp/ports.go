package mcp

import (
	"github.com/custodia-labs/finqa/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides direct chunk search.
	Search driving.SearchService

	// Analysis answers questions and reports store statistics.
	// Optional: without it only search_chunks is useful.
	Analysis driving.AnalysisService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
