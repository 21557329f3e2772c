package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// URIScheme is the custom URI scheme for finqa resources.
	uriScheme = "finqa://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "stats",
		Name:        "stats",
		Description: "Chunk store statistics: chunk count, embedding model and indexed sections",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "Ingested documents and section names",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// Template for a single ingested document.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{filename}",
		Name:        "document",
		Description: "Metadata of one ingested document",
		MIMEType:    "application/json",
	}, s.handleDocumentResource)
}

// handleStatsResource returns the store statistics.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Analysis == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	stats, err := s.ports.Analysis.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting stats: %w", err)
	}
	return jsonResult(req.Params.URI, stats)
}

// handleDocumentsResource returns the document listing.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Analysis == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	listing, err := s.ports.Analysis.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return jsonResult(req.Params.URI, listing)
}

// handleDocumentResource returns the summary of one document.
func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Analysis == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// Extract filename from URI: finqa://documents/{filename}
	filename := extractFilename(req.Params.URI)
	if filename == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	listing, err := s.ports.Analysis.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	for _, doc := range listing.DocumentsLoaded {
		if doc.Filename == filename {
			return jsonResult(req.Params.URI, doc)
		}
	}
	return nil, mcp.ResourceNotFoundError(req.Params.URI)
}

// jsonResult wraps v as a JSON resource body.
func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractFilename extracts the filename from a URI like finqa://documents/{filename}.
// Percent-encoded names are decoded.
func extractFilename(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	name := strings.TrimPrefix(uri, prefix)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if strings.Contains(name, "/") {
		return ""
	}
	return name
}
