package harness

import (
	"github.com/roach88/infobase/internal/diag"
	"github.com/roach88/infobase/internal/testutil"
	"github.com/roach88/infobase/internal/thing"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds events and trigger invocations in observed order.
	Trace []testutil.Entry `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the latest document of every key a final_state
	// assertion inspected. Absent keys map to nil.
	State map[string]thing.Data `json:"state,omitempty"`

	// Failures are the observer failures recorded during the steps.
	Failures []diag.Failure `json:"failures,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []testutil.Entry{},
		Errors: []string{},
		State:  make(map[string]thing.Data),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
