package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanStep_Kind(t *testing.T) {
	tests := []struct {
		step PlanStep
		kind StepKind
		node NodeName
	}{
		{"RETRIEVE: net profit Q1 2024", StepRetrieve, NodeRetrieval},
		{"retrieve total assets", StepRetrieve, NodeRetrieval},
		{"CALCULATE: growth rate", StepCalculate, NodeCalculation},
		{"  calculate ratio", StepCalculate, NodeCalculation},
		{"SYNTHESIZE: final answer", StepSynthesize, NodeSynthesis},
		{"Synthesize everything", StepSynthesize, NodeSynthesis},
		{"LOOKUP: deposits", StepRetrieve, NodeRetrieval},
		{"", StepRetrieve, NodeRetrieval},
	}

	for _, tt := range tests {
		t.Run(string(tt.step), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.step.Kind())
			assert.Equal(t, tt.node, tt.step.Node())
		})
	}
}

func TestStepKind_String(t *testing.T) {
	assert.Equal(t, "RETRIEVE", StepRetrieve.String())
	assert.Equal(t, "CALCULATE", StepCalculate.String())
	assert.Equal(t, "SYNTHESIZE", StepSynthesize.String())
}

func TestFallbackPlan(t *testing.T) {
	plan := FallbackPlan()
	require.Len(t, plan, 1)
	assert.Equal(t, PlanStep("RETRIEVE: General information about the query"), plan[0])
}

func TestWorkflowState_Step(t *testing.T) {
	s := NewWorkflowState("q")
	assert.False(t, s.HasPlan())
	assert.True(t, s.Done())
	assert.Equal(t, PlanStep(""), s.Step())

	s.Plan = []PlanStep{"RETRIEVE: a", "SYNTHESIZE: b"}
	assert.True(t, s.HasPlan())
	assert.False(t, s.Done())
	assert.Equal(t, PlanStep("RETRIEVE: a"), s.Step())

	s.CurrentStep = 2
	assert.True(t, s.Done())
	assert.Equal(t, PlanStep(""), s.Step())
}

func TestWorkflowState_AppendDoesNotAlias(t *testing.T) {
	base := NewWorkflowState("q")
	base = base.Append(RetrievalContext{Step: "a", Timestamp: 0})

	left := base.Append(RetrievalContext{Step: "left", Timestamp: 1})
	right := base.Append(CalculationContext{Step: "right", Timestamp: 1})

	require.Len(t, base.Context, 1)
	require.Len(t, left.Context, 2)
	require.Len(t, right.Context, 2)
	assert.IsType(t, RetrievalContext{}, left.Context[1])
	assert.IsType(t, CalculationContext{}, right.Context[1])
}

func TestWorkflowState_Clone(t *testing.T) {
	s := NewWorkflowState("q")
	s.Plan = []PlanStep{"RETRIEVE: a"}
	s.CalculationResults["step_0"] = CalculationResult{ExecutionSuccess: true}
	s.Validation = &Validation{IsValid: true}
	s.Metadata[MetaPlanSource] = PlanSourcePlanner

	c := s.Clone()
	c.Plan[0] = "changed"
	c.CalculationResults["step_1"] = CalculationResult{}
	c.Validation.IsValid = false
	c.Metadata[MetaPlanSource] = PlanSourceFallback

	assert.Equal(t, PlanStep("RETRIEVE: a"), s.Plan[0])
	assert.Len(t, s.CalculationResults, 1)
	assert.True(t, s.Validation.IsValid)
	assert.Equal(t, PlanSourcePlanner, s.Metadata[MetaPlanSource])
}

func TestWorkflowState_WithMeta(t *testing.T) {
	s := WorkflowState{}
	next := s.WithMeta(MetaPlanSource, PlanSourceFallback)

	assert.Nil(t, s.Metadata)
	assert.Equal(t, map[string]string{MetaPlanSource: PlanSourceFallback}, next.Metadata)

	again := next.WithMeta(MetaFiltersDropped, "1")
	assert.Len(t, next.Metadata, 1)
	assert.Len(t, again.Metadata, 2)
}

func TestContextItem_Position(t *testing.T) {
	items := []ContextItem{
		RetrievalContext{Timestamp: 0},
		CalculationContext{Timestamp: 1},
		SynthesisContext{Timestamp: 2},
	}
	for i, item := range items {
		assert.Equal(t, i, item.Position())
	}
}

func TestCalculationKey(t *testing.T) {
	assert.Equal(t, "step_0", CalculationKey(0))
	assert.Equal(t, "step_12", CalculationKey(12))
}

func TestDefaultValidation(t *testing.T) {
	v := DefaultValidation()
	assert.True(t, v.IsValid)
	assert.Equal(t, "Validation failed", v.Notes)
	assert.NotNil(t, v.UnsupportedClaims)
}
