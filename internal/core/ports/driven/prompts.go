package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the application.
// Templates are rendered with text/template; the fields available to each
// are listed alongside.
const (
	// PromptPlan decomposes a query into plan steps.
	// Fields: .Query.
	PromptPlan = "plan"

	// PromptRetrieval produces search queries and metadata filters.
	// Fields: .Query, .Step, .Context.
	PromptRetrieval = "retrieval"

	// PromptMetrics extracts named financial metrics from context.
	// Fields: .Request, .Context, .Hints.
	PromptMetrics = "metrics"

	// PromptCalculation proposes a formula and its input bindings.
	// Fields: .Request, .Context, .Metrics.
	PromptCalculation = "calculation"

	// PromptSynthesis writes the cited final answer.
	// Fields: .Query, .Context, .Calculations.
	PromptSynthesis = "synthesis"

	// PromptValidation grades an answer against its context.
	// Fields: .Query, .Answer, .Context.
	PromptValidation = "validation"
)

// PromptNames returns every well-known prompt name.
func PromptNames() []string {
	return []string{
		PromptPlan,
		PromptRetrieval,
		PromptMetrics,
		PromptCalculation,
		PromptSynthesis,
		PromptValidation,
	}
}
