package domain

// Metric is a named financial figure extracted from retrieved text.
type Metric struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Source string  `json:"source,omitempty"`
}

// CalculationProposal is the formula and bindings the LLM proposes.
type CalculationProposal struct {
	CalculationType string             `json:"calculation_type"`
	FormulaUsed     string             `json:"formula_used"`
	InputValues     map[string]float64 `json:"input_values"`
	Result          *float64           `json:"result"`
	Units           string             `json:"units"`
	Explanation     string             `json:"explanation"`
	Validation      string             `json:"validation"`
}

// CalculationResult is the outcome of a calculation step.
// ValidatedResult is the locally evaluated value and is nil
// whenever ExecutionSuccess is false.
type CalculationResult struct {
	CalculationProposal

	Metrics          map[string]Metric `json:"metrics,omitempty"`
	ValidatedResult  *float64          `json:"validated_result"`
	ExecutionSuccess bool              `json:"execution_success"`
	ExecutionError   string            `json:"execution_error,omitempty"`
}

// FailedCalculation returns an unsuccessful result carrying err.
func FailedCalculation(err error) CalculationResult {
	return CalculationResult{
		CalculationProposal: CalculationProposal{
			CalculationType: "error",
			Units:           Unknown,
		},
		ExecutionSuccess: false,
		ExecutionError:   err.Error(),
	}
}
