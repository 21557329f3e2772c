package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/logger"
)

// Planner creates the plan for a query.
type Planner interface {
	CreatePlan(ctx context.Context, query string) []domain.PlanStep
}

// Retriever executes retrieval steps.
type Retriever interface {
	ExecuteRetrieval(ctx context.Context, query string, step domain.PlanStep, items []domain.ContextItem) RetrievalOutcome
}

// Calculator executes calculation steps.
type Calculator interface {
	PerformCalculation(ctx context.Context, request string, items []domain.ContextItem) domain.CalculationResult
}

// AnswerWriter writes and grades the final answer.
type AnswerWriter interface {
	Synthesize(ctx context.Context, query string, items []domain.ContextItem,
		calcs map[string]domain.CalculationResult) (string, error)
	Validate(ctx context.Context, query, answer string, items []domain.ContextItem) domain.Validation
}

// Ensure the LLM-backed nodes satisfy the workflow's interfaces.
var (
	_ Planner      = (*Orchestrator)(nil)
	_ Retriever    = (*RetrievalPlanner)(nil)
	_ Calculator   = (*CalculationEngine)(nil)
	_ AnswerWriter = (*Synthesizer)(nil)
)

// Observer is told of every state the workflow enters, with a copy of the
// state as it stood on entry.
type Observer func(node domain.NodeName, state domain.WorkflowState)

// Workflow is the plan-execute state machine. One Run owns its state;
// a Workflow may serve concurrent Runs.
type Workflow struct {
	planner    Planner
	retriever  Retriever
	calculator Calculator
	writer     AnswerWriter

	maxTransitions int
	observer       Observer
	abortOnOutage  bool
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithMaxTransitions caps the number of node executions per run.
// Zero derives the cap from the plan length.
func WithMaxTransitions(n int) WorkflowOption {
	return func(w *Workflow) {
		w.maxTransitions = n
	}
}

// WithObserver registers a callback for every state entered.
func WithObserver(fn Observer) WorkflowOption {
	return func(w *Workflow) {
		w.observer = fn
	}
}

// WithAbortOnStoreFailure makes a retrieval step whose every search
// failed abort the run. By default the failure is recorded on the step's
// context item and the run continues.
func WithAbortOnStoreFailure(abort bool) WorkflowOption {
	return func(w *Workflow) {
		w.abortOnOutage = abort
	}
}

// NewWorkflow assembles a workflow from its nodes.
func NewWorkflow(
	planner Planner, retriever Retriever, calculator Calculator, writer AnswerWriter, opts ...WorkflowOption,
) *Workflow {
	w := &Workflow{
		planner:    planner,
		retriever:  retriever,
		calculator: calculator,
		writer:     writer,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the workflow for query until it reaches the finish state.
// Node failures abort the run with a *domain.WorkflowError; the state
// reached so far is returned alongside.
func (w *Workflow) Run(ctx context.Context, query string) (domain.WorkflowState, error) {
	state := domain.NewWorkflowState(query)
	node := domain.NodeOrchestrator
	transitions := 0

	for node != domain.NodeFinish {
		if err := ctx.Err(); err != nil {
			return state, w.fail(node, state, err)
		}
		if w.observer != nil {
			w.observer(node, state.Clone())
		}
		logger.Debug("Workflow node %s (step %d/%d)", node, state.CurrentStep, len(state.Plan))

		var next domain.NodeName
		var err error
		switch node {
		case domain.NodeOrchestrator:
			state, next = w.orchestrate(ctx, state)
		case domain.NodeRetrieval:
			state, next, err = w.retrieve(ctx, state)
		case domain.NodeCalculation:
			state, next = w.calculate(ctx, state)
		case domain.NodeSynthesis:
			state, next, err = w.synthesize(ctx, state)
		default:
			err = w.fail(node, state, fmt.Errorf("unknown node %q", node))
		}
		if err != nil {
			return state, err
		}

		transitions++
		if transitions > w.limit(state) {
			return state, w.fail(node, state, domain.ErrWorkflowStalled)
		}
		node = next
	}

	if w.observer != nil {
		w.observer(domain.NodeFinish, state.Clone())
	}
	return state, nil
}

func (w *Workflow) limit(state domain.WorkflowState) int {
	if w.maxTransitions > 0 {
		return w.maxTransitions
	}
	return 4*len(state.Plan) + 8
}

func (w *Workflow) fail(node domain.NodeName, state domain.WorkflowState, err error) error {
	return &domain.WorkflowError{
		Node:     node,
		Step:     state.CurrentStep,
		StepText: state.Step(),
		Err:      err,
	}
}

// orchestrate creates the plan on first entry and advances the step
// counter on every later entry, then routes on the step's verb.
func (w *Workflow) orchestrate(ctx context.Context, state domain.WorkflowState) (domain.WorkflowState, domain.NodeName) {
	if !state.HasPlan() {
		plan := w.planner.CreatePlan(ctx, state.Query)
		source := domain.PlanSourcePlanner
		if len(plan) == 0 {
			plan = domain.FallbackPlan()
			source = domain.PlanSourceFallback
		}
		state = state.WithMeta(domain.MetaPlanSource, source)
		state.Plan = slices.Clone(plan)
		state.CurrentStep = 0
		state.Context = nil
		state.RetrievalHistory = nil
		state.CalculationResults = map[string]domain.CalculationResult{}
		logger.Info("Plan has %d steps", len(plan))
	} else {
		state.CurrentStep++
	}

	if state.Done() {
		return state, domain.NodeFinish
	}
	return state, state.Step().Node()
}

func (w *Workflow) retrieve(
	ctx context.Context, state domain.WorkflowState,
) (domain.WorkflowState, domain.NodeName, error) {
	step := state.Step()
	out := w.retriever.ExecuteRetrieval(ctx, state.Query, step, state.Context)
	if out.Unavailable && w.abortOnOutage {
		return state, "", w.fail(domain.NodeRetrieval, state, fmt.Errorf("%w: %w", domain.ErrStorage, out.Err))
	}

	item := domain.RetrievalContext{
		Step:      string(step),
		Results:   out.Results,
		Timestamp: len(state.Context),
	}
	if out.Err != nil {
		item.Error = out.Err.Error()
	}
	state = state.Append(item)
	if out.Plan.FiltersDropped {
		n, _ := strconv.Atoi(state.Metadata[domain.MetaFiltersDropped])
		state = state.WithMeta(domain.MetaFiltersDropped, strconv.Itoa(n+1))
	}
	state.RetrievalHistory = append(slices.Clip(state.RetrievalHistory), domain.RetrievalRecord{
		Step:         state.CurrentStep,
		Query:        string(step),
		ResultsCount: len(out.Results),
		Timestamp:    len(state.RetrievalHistory),
	})
	return state, w.afterStep(state), nil
}

func (w *Workflow) calculate(ctx context.Context, state domain.WorkflowState) (domain.WorkflowState, domain.NodeName) {
	step := state.Step()
	res := w.calculator.PerformCalculation(ctx, string(step), state.Context)

	state = state.Append(domain.CalculationContext{
		Step:      string(step),
		Result:    res,
		Timestamp: len(state.Context),
	})
	results := maps.Clone(state.CalculationResults)
	if results == nil {
		results = map[string]domain.CalculationResult{}
	}
	results[domain.CalculationKey(state.CurrentStep)] = res
	state.CalculationResults = results
	return state, w.afterStep(state)
}

func (w *Workflow) synthesize(
	ctx context.Context, state domain.WorkflowState,
) (domain.WorkflowState, domain.NodeName, error) {
	answer, err := w.writer.Synthesize(ctx, state.Query, state.Context, state.CalculationResults)
	if err != nil {
		return state, "", w.fail(domain.NodeSynthesis, state, err)
	}
	validation := w.writer.Validate(ctx, state.Query, answer, state.Context)
	if !validation.IsValid {
		logger.Warn("Answer failed validation: %d unsupported claims, %d missing citations",
			len(validation.UnsupportedClaims), len(validation.MissingCitations))
	}

	state.FinalAnswer = answer
	state.Validation = &validation
	state = state.Append(domain.SynthesisContext{
		Answer:     answer,
		Validation: validation,
		Timestamp:  len(state.Context),
	})
	return state, domain.NodeFinish, nil
}

// afterStep routes back to the orchestrator unless the plan is exhausted.
func (w *Workflow) afterStep(state domain.WorkflowState) domain.NodeName {
	if state.Done() {
		return domain.NodeFinish
	}
	return domain.NodeOrchestrator
}
