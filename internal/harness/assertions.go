package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			switch {
			case ev.Warning != "" && ev.StepType != "":
				fmt.Fprintf(&buf, "  [%d] %s (%s) warning: %s\n", ev.Seq, ev.StepType, ev.Placement, ev.Warning)
			case ev.Warning != "":
				fmt.Fprintf(&buf, "  [%d] warning: %s\n", ev.Seq, ev.Warning)
			default:
				fmt.Fprintf(&buf, "  [%d] %s (%s)\n", ev.Seq, ev.StepType, ev.Placement)
			}
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages. An empty slice means all assertions hold.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertStepTypes:
		return assertStepTypes(result, a)
	case AssertStepCount:
		return assertCount(a.Type, len(result.Steps), a.Count, result.Trace)
	case AssertWarningCount:
		return assertCount(a.Type, len(result.Warnings()), a.Count, result.Trace)
	case AssertTemplateCount:
		return assertCount(a.Type, len(result.Templates), a.Count, nil)
	case AssertSourceContains:
		if !strings.Contains(result.Source, a.Text) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("source containing %q", a.Text),
				Actual:   "not found in source",
			}
		}
	case AssertSourceNotContains:
		if strings.Contains(result.Source, a.Text) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("source without %q", a.Text),
				Actual:   "found in source",
			}
		}
	case AssertFindings:
		return assertFindings(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// assertStepTypes checks the recorded step types match exactly, in order.
func assertStepTypes(result *Result, a Assertion) error {
	actual := make([]string, len(result.Steps))
	for i, s := range result.Steps {
		actual[i] = string(s.Type)
	}
	if !slices.Equal(actual, a.Types) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%v", a.Types),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertCount(kind string, actual, expected int, trace []TraceEvent) error {
	if actual != expected {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d", expected),
			Actual:   fmt.Sprintf("%d", actual),
			Trace:    trace,
		}
	}
	return nil
}

// assertFindings checks the validator reported exactly the given codes.
func assertFindings(result *Result, a Assertion) error {
	actual := make([]string, len(result.Findings))
	for i, f := range result.Findings {
		actual[i] = f.Code
	}
	expected := a.Codes
	if expected == nil {
		expected = []string{}
	}
	if !slices.Equal(actual, expected) {
		details := make([]string, len(result.Findings))
		for i, f := range result.Findings {
			details[i] = f.String()
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%v", expected),
			Actual:   fmt.Sprintf("%v %v", actual, details),
		}
	}
	return nil
}
