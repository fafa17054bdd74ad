package harness

import (
	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/validator"
)

// TraceEvent records one insertion applied by the session, in apply order.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	StepID    string `json:"step_id,omitempty"`
	StepType  string `json:"step_type,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Placement string `json:"placement"`
	Line      int    `json:"line"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every applied insertion in order.
	Trace []TraceEvent `json:"trace"`

	// Steps is the final step list.
	Steps []ir.Step `json:"steps"`

	// Source is the final script source.
	Source string `json:"source"`

	// Findings is the validator report on Source.
	Findings []validator.Finding `json:"findings,omitempty"`

	// Templates are the names stored for the script.
	Templates []string `json:"templates,omitempty"`

	// Conflict is set when the closing resynthesis had to recover the
	// manual region by line matching.
	Conflict bool `json:"conflict,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Warnings returns the capture warnings in apply order.
func (r *Result) Warnings() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Warning != "" {
			out = append(out, ev.Warning)
		}
	}
	return out
}
