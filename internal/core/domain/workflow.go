package domain

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// NodeName identifies a state of the plan-execute workflow.
type NodeName string

// Workflow states.
const (
	NodeOrchestrator NodeName = "orchestrator"
	NodeRetrieval    NodeName = "retrieval"
	NodeCalculation  NodeName = "calculation"
	NodeSynthesis    NodeName = "synthesis"
	NodeFinish       NodeName = "finish"
)

// String returns the string representation.
func (n NodeName) String() string {
	return string(n)
}

// StepKind is the action a plan step asks for.
type StepKind int

// Plan step kinds.
const (
	StepRetrieve StepKind = iota
	StepCalculate
	StepSynthesize
)

// String returns the verb of the step kind.
func (k StepKind) String() string {
	switch k {
	case StepCalculate:
		return "CALCULATE"
	case StepSynthesize:
		return "SYNTHESIZE"
	default:
		return "RETRIEVE"
	}
}

// PlanStep is one instruction in an ordered query decomposition,
// e.g. "RETRIEVE: net profit for Q1 2024".
type PlanStep string

// Kind classifies a step by its leading verb, ignoring case.
// Anything that is not a calculation or synthesis is a retrieval.
func (s PlanStep) Kind() StepKind {
	upper := strings.ToUpper(strings.TrimSpace(string(s)))
	switch {
	case strings.HasPrefix(upper, "SYNTHESIZE"):
		return StepSynthesize
	case strings.HasPrefix(upper, "CALCULATE"):
		return StepCalculate
	default:
		return StepRetrieve
	}
}

// Node returns the workflow state that executes this step.
func (s PlanStep) Node() NodeName {
	switch s.Kind() {
	case StepSynthesize:
		return NodeSynthesis
	case StepCalculate:
		return NodeCalculation
	default:
		return NodeRetrieval
	}
}

// FallbackPlan is used when the planning call yields nothing usable.
func FallbackPlan() []PlanStep {
	return []PlanStep{"RETRIEVE: General information about the query"}
}

// ContextItem is a fact accumulated during a workflow run.
// The set of implementations is closed: RetrievalContext,
// CalculationContext and SynthesisContext.
type ContextItem interface {
	// Position is the index the item occupied when it was appended.
	Position() int

	contextItem()
}

// RetrievalContext holds the results of one retrieval step.
// Error is set when some searches of the step failed.
type RetrievalContext struct {
	Step      string
	Results   []RetrievalResult
	Error     string
	Timestamp int
}

// CalculationContext holds the outcome of one calculation step.
type CalculationContext struct {
	Step      string
	Result    CalculationResult
	Timestamp int
}

// SynthesisContext holds the final answer and its validation.
type SynthesisContext struct {
	Answer     string
	Validation Validation
	Timestamp  int
}

// Position implements ContextItem.
func (c RetrievalContext) Position() int { return c.Timestamp }

// Position implements ContextItem.
func (c CalculationContext) Position() int { return c.Timestamp }

// Position implements ContextItem.
func (c SynthesisContext) Position() int { return c.Timestamp }

func (RetrievalContext) contextItem()   {}
func (CalculationContext) contextItem() {}
func (SynthesisContext) contextItem()   {}

// RetrievalRecord is one entry of the retrieval audit trail.
type RetrievalRecord struct {
	Step         int    `json:"step"`
	Query        string `json:"query"`
	ResultsCount int    `json:"results_count"`
	Timestamp    int    `json:"timestamp"`
}

// WorkflowState is owned by exactly one query execution.
// Nodes receive it by value and return the successor state.
type WorkflowState struct {
	Query              string
	Plan               []PlanStep
	Context            []ContextItem
	CurrentStep        int
	FinalAnswer        string
	Validation         *Validation
	RetrievalHistory   []RetrievalRecord
	CalculationResults map[string]CalculationResult

	// Metadata annotates the run, for example with where the plan came from.
	Metadata map[string]string
}

// Workflow metadata keys and values.
const (
	MetaPlanSource     = "plan_source"
	MetaFiltersDropped = "filters_dropped"

	PlanSourcePlanner  = "planner"
	PlanSourceFallback = "fallback"
)

// NewWorkflowState returns the initial state for query, with no plan.
func NewWorkflowState(query string) WorkflowState {
	return WorkflowState{
		Query:              query,
		CalculationResults: map[string]CalculationResult{},
		Metadata:           map[string]string{},
	}
}

// HasPlan reports whether a plan has been generated.
func (s WorkflowState) HasPlan() bool {
	return s.Plan != nil
}

// Done reports whether every plan step has been consumed.
func (s WorkflowState) Done() bool {
	return s.CurrentStep >= len(s.Plan)
}

// Step returns the plan step at CurrentStep, or "" when out of range.
func (s WorkflowState) Step() PlanStep {
	if s.CurrentStep < 0 || s.CurrentStep >= len(s.Plan) {
		return ""
	}
	return s.Plan[s.CurrentStep]
}

// Append returns a copy of s with item added to Context.
// Context is append-only; existing items are never rewritten.
func (s WorkflowState) Append(item ContextItem) WorkflowState {
	s.Context = append(slices.Clip(s.Context), item)
	return s
}

// WithMeta returns a copy of s with Metadata[key] set to value.
// The receiver's map is left untouched.
func (s WorkflowState) WithMeta(key, value string) WorkflowState {
	m := maps.Clone(s.Metadata)
	if m == nil {
		m = map[string]string{}
	}
	m[key] = value
	s.Metadata = m
	return s
}

// Clone returns a deep copy of the state's collections.
func (s WorkflowState) Clone() WorkflowState {
	s.Plan = slices.Clone(s.Plan)
	s.Context = slices.Clone(s.Context)
	s.RetrievalHistory = slices.Clone(s.RetrievalHistory)
	s.CalculationResults = maps.Clone(s.CalculationResults)
	s.Metadata = maps.Clone(s.Metadata)
	if s.Validation != nil {
		v := *s.Validation
		s.Validation = &v
	}
	return s
}

// CalculationKey is the CalculationResults key for the step at index.
func CalculationKey(step int) string {
	return "step_" + strconv.Itoa(step)
}
