package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider, backend or file type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Query analysis requires an LLM.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrStorage indicates the chunk store could not embed, write or query.
	ErrStorage = errors.New("storage failure")

	// ErrConversionFailed indicates a document could not be converted to marked text.
	ErrConversionFailed = errors.New("document conversion failed")

	// ErrMalformedOutput indicates an LLM response did not match the expected shape.
	ErrMalformedOutput = errors.New("malformed LLM output")

	// ErrEvaluation indicates an arithmetic expression could not be evaluated.
	ErrEvaluation = errors.New("evaluation failed")

	// ErrWorkflowStalled indicates the workflow exceeded its transition budget.
	ErrWorkflowStalled = errors.New("workflow did not terminate")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// StorageError is returned by chunk store operations whose embedding
// or index call failed.
type StorageError struct {
	// Op is the store operation, e.g. "insert" or "search".
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("chunk store %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// WorkflowError reports a failure that aborted a query inside a node.
type WorkflowError struct {
	Node     NodeName
	Step     int
	StepText PlanStep
	Err      error
}

func (e *WorkflowError) Error() string {
	if e.StepText == "" {
		return fmt.Sprintf("workflow node %s (step %d): %v", e.Node, e.Step, e.Err)
	}
	return fmt.Sprintf("workflow node %s (step %d %q): %v", e.Node, e.Step, e.StepText, e.Err)
}

// Unwrap returns the underlying cause.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}
