package steps

import (
	"fmt"
	"strings"

	"github.com/roach88/autovnc/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidType      = "E101" // unknown step type
	ErrMissingTarget    = "E102" // click needs a template or both coordinates
	ErrMissingText      = "E103" // text or keys required
	ErrMissingKeys      = "E104" // keys required
	ErrMissingTemplate  = "E105" // template required
	ErrMissingCoords    = "E106" // coordinate pair required
	ErrInvalidRange     = "E107" // numeric value out of range
	ErrInvalidDirection = "E108" // unknown scroll direction
	ErrInvalidRegion    = "E109" // region must have positive size
	ErrDuplicateID      = "E110" // step id already used in this script
)

// ValidationError is a field-level problem with one step.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Index   int    `json:"index,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is the error returned when a step is rejected.
type ValidationErrors []ValidationError

// Error joins the individual messages.
func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "invalid step: " + strings.Join(msgs, "; ")
}

// Validate checks one step against the required-field set of its type.
// Returns all errors found (does not fail-fast).
func Validate(s ir.Step) []ValidationError {
	var errs []ValidationError

	if !s.Type.Valid() {
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unknown step type %q", s.Type),
			Code:    ErrInvalidType,
		}}
	}

	switch s.Type {
	case ir.StepClick, ir.StepDoubleClick, ir.StepRightClick:
		if s.Template == "" && !s.HasPoint() {
			errs = append(errs, ValidationError{
				Field:   "template",
				Message: fmt.Sprintf("%s requires a template or both x and y", s.Type),
				Code:    ErrMissingTarget,
			})
		}

	case ir.StepTypeText:
		if s.Text == "" && len(s.Keys) == 0 {
			errs = append(errs, ValidationError{
				Field:   "text",
				Message: "type requires non-empty text or keys",
				Code:    ErrMissingText,
			})
		}

	case ir.StepKeyPress, ir.StepKeyCombo:
		if len(s.Keys) == 0 {
			errs = append(errs, ValidationError{
				Field:   "keys",
				Message: fmt.Sprintf("%s requires at least one key", s.Type),
				Code:    ErrMissingKeys,
			})
		}

	case ir.StepWaitForImage:
		if s.Template == "" {
			errs = append(errs, ValidationError{
				Field:   "template",
				Message: "wait_for_image requires a template",
				Code:    ErrMissingTemplate,
			})
		}

	case ir.StepWaitForText:
		if strings.TrimSpace(s.Text) == "" {
			errs = append(errs, ValidationError{
				Field:   "text",
				Message: "wait_for_text requires non-empty text",
				Code:    ErrMissingText,
			})
		}

	case ir.StepDrag:
		if !s.HasPoint() {
			errs = append(errs, ValidationError{
				Field:   "x",
				Message: "drag requires start x and y",
				Code:    ErrMissingCoords,
			})
		}
		if s.EndX == nil || s.EndY == nil {
			errs = append(errs, ValidationError{
				Field:   "end_x",
				Message: "drag requires end_x and end_y",
				Code:    ErrMissingCoords,
			})
		}

	case ir.StepScroll:
		switch s.Direction {
		case ir.ScrollUp, ir.ScrollDown, ir.ScrollLeft, ir.ScrollRight:
		default:
			errs = append(errs, ValidationError{
				Field:   "direction",
				Message: fmt.Sprintf("invalid scroll direction %q, must be up, down, left or right", s.Direction),
				Code:    ErrInvalidDirection,
			})
		}
		if s.Clicks < 0 {
			errs = append(errs, ValidationError{
				Field:   "clicks",
				Message: "clicks must not be negative",
				Code:    ErrInvalidRange,
			})
		}

	case ir.StepWait:
		if s.Duration < 0 {
			errs = append(errs, ValidationError{
				Field:   "duration",
				Message: "duration must not be negative",
				Code:    ErrInvalidRange,
			})
		}
	}

	errs = append(errs, validateCommon(s)...)
	return errs
}

// validateCommon checks fields that share rules across every type.
func validateCommon(s ir.Step) []ValidationError {
	var errs []ValidationError

	if s.Threshold < 0 || s.Threshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "threshold",
			Message: fmt.Sprintf("threshold %v must be between 0 and 1", s.Threshold),
			Code:    ErrInvalidRange,
		})
	}
	if s.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "timeout must not be negative",
			Code:    ErrInvalidRange,
		})
	}
	if s.DelayBefore < 0 {
		errs = append(errs, ValidationError{
			Field:   "delay_before",
			Message: "delay_before must not be negative",
			Code:    ErrInvalidRange,
		})
	}
	if s.Region != nil && (s.Region.Width <= 0 || s.Region.Height <= 0) {
		errs = append(errs, ValidationError{
			Field:   "region",
			Message: fmt.Sprintf("region %dx%d must have positive width and height", s.Region.Width, s.Region.Height),
			Code:    ErrInvalidRegion,
		})
	}

	return errs
}

// ValidateAll validates a whole list, prefixing fields with their index and
// reporting duplicate ids.
func ValidateAll(list []ir.Step) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i, s := range list {
		for _, e := range Validate(s) {
			e.Field = fmt.Sprintf("steps[%d].%s", i, e.Field)
			e.Index = i
			errs = append(errs, e)
		}
		if s.ID == "" {
			continue
		}
		if seen[s.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].id", i),
				Message: fmt.Sprintf("duplicate step id %q", s.ID),
				Code:    ErrDuplicateID,
				Index:   i,
			})
		}
		seen[s.ID] = true
	}

	return errs
}
