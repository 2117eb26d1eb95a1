package harness

import "github.com/roach88/condpush/internal/query"

// CaseResult is the outcome of one scenario case.
type CaseResult struct {
	Name string `json:"name"`

	// Rewritten is the conditional query after pushdown.
	Rewritten string `json:"rewritten"`

	// SQL and Params are the statement the rewritten query translates to.
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`

	// Rows are the rendered rows every backend agreed on, or the rows of
	// the in-memory conditional run when they disagreed.
	Rows []string `json:"rows"`

	// Original is the parsed conditional query before pushdown.
	Original *query.Query `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every case agreed across backends and every assertion held.
	Pass bool `json:"pass"`

	Scenario string       `json:"scenario"`
	Cases    []CaseResult `json:"cases"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(scenario string) *Result {
	return &Result{
		Pass:     true,
		Scenario: scenario,
		Cases:    []CaseResult{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Case returns the result of the named case.
func (r *Result) Case(name string) (*CaseResult, bool) {
	for i := range r.Cases {
		if r.Cases[i].Name == name {
			return &r.Cases[i], true
		}
	}
	return nil, false
}
