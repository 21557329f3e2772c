package domain

// Validation is the LLM-graded check of a synthesized answer.
type Validation struct {
	IsValid           bool     `json:"is_valid"`
	UnsupportedClaims []string `json:"unsupported_claims"`
	MissingCitations  []string `json:"missing_citations"`
	Notes             string   `json:"validation_notes"`
}

// DefaultValidation is reported when the validation call itself fails.
func DefaultValidation() Validation {
	return Validation{
		IsValid:           true,
		UnsupportedClaims: []string{},
		MissingCitations:  []string{},
		Notes:             "Validation failed",
	}
}

// Source is a chunk cited by an answer.
type Source struct {
	Document       string `json:"document"`
	Section        string `json:"section"`
	Page           int    `json:"page"`
	Quarter        string `json:"quarter"`
	Year           string `json:"year"`
	ContentPreview string `json:"content_preview"`
}

// QueryResponse is returned for every analysed query, successful or not.
type QueryResponse struct {
	Query                 string                       `json:"query"`
	FinalAnswer           string                       `json:"final_answer"`
	SourcesUsed           []Source                     `json:"sources_used"`
	CalculationsPerformed map[string]CalculationResult `json:"calculations_performed"`
	RetrievalSteps        []RetrievalRecord            `json:"retrieval_steps"`
	Validation            *Validation                  `json:"validation"`
	ProcessingSteps       int                          `json:"processing_steps"`
	Success               bool                         `json:"success"`
	Error                 string                       `json:"error,omitempty"`
}
