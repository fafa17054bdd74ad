package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/validator"
)

func sampleResult() *Result {
	r := NewResult()
	r.Steps = []ir.Step{{Type: ir.StepClick}, {Type: ir.StepTypeText}}
	r.Source = "def run(vnc):\n    vnc.click(1, 2)\n"
	r.Templates = []string{"template.png"}
	r.Trace = []TraceEvent{
		{Seq: 1, StepType: "click", Placement: "replaced_placeholder"},
		{Seq: 2, Warning: "wait_for_text capture failed: no text", Placement: "appended_to_body"},
		{Seq: 3, StepType: "type", Placement: "appended_to_body"},
	}
	r.Findings = []validator.Finding{{Code: validator.ConflictLibraryCall, Severity: validator.SeverityInfo, Line: 9}}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertStepTypes, Types: []string{"click", "type"}},
		{Type: AssertStepCount, Count: 2},
		{Type: AssertWarningCount, Count: 1},
		{Type: AssertTemplateCount, Count: 1},
		{Type: AssertSourceContains, Text: "vnc.click(1, 2)"},
		{Type: AssertSourceNotContains, Text: "pass"},
		{Type: AssertFindings, Codes: []string{"C401"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"step types", Assertion{Type: AssertStepTypes, Types: []string{"type", "click"}}, "Actual: [click type]"},
		{"step count", Assertion{Type: AssertStepCount, Count: 3}, "Expected: 3"},
		{"warnings", Assertion{Type: AssertWarningCount}, "Actual: 1"},
		{"templates", Assertion{Type: AssertTemplateCount, Count: 2}, "Expected: 2"},
		{"contains", Assertion{Type: AssertSourceContains, Text: "drag"}, "not found in source"},
		{"not contains", Assertion{Type: AssertSourceNotContains, Text: "click"}, "found in source"},
		{"no findings", Assertion{Type: AssertFindings}, "Expected: []"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "assertion 0")
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertStepCount,
		Expected: "3",
		Actual:   "2",
		Trace:    sampleResult().Trace,
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: step_count")
	assert.Contains(t, msg, "[1] click (replaced_placeholder)")
	assert.Contains(t, msg, "[2] warning: wait_for_text capture failed")
	assert.Contains(t, msg, "[3] type (appended_to_body)")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
