// Package domain defines the core business entities for finqa.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Section: A named, paged span of a converted document
//   - Chunk: A retrievable unit of section text with provenance metadata
//   - WorkflowState: The per-query state threaded through the plan-execute loop
//   - ContextItem: The closed set of facts a workflow accumulates
//   - QueryResponse: The caller-facing answer envelope
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
