package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/autovnc/internal/steps"
)

// StepsValidateResult is the JSON payload of steps validate.
type StepsValidateResult struct {
	Name      string                  `json:"name"`
	StepCount int                     `json:"step_count"`
	Valid     bool                    `json:"valid"`
	Errors    []steps.ValidationError `json:"errors,omitempty"`
}

// NewStepsCommand creates the steps command group.
func NewStepsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Work with step files",
	}
	cmd.AddCommand(newStepsValidateCommand(rootOpts))
	return cmd
}

func newStepsValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <steps-file>",
		Short: "Validate a step file",
		Long: `Validate every step in a YAML, JSON or CUE step file.

All problems are reported, each with the field it concerns.

Exit codes:
  0 - All steps are valid
  1 - One or more steps are invalid
  2 - The file could not be loaded

Examples:
  autovnc steps validate login.yaml
  autovnc steps validate login.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStepsValidate(rootOpts, cmd, args[0])
		},
	}
}

func runStepsValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	f := newFormatter(opts, cmd)

	file, err := LoadStepFile(path)
	if err != nil {
		return failLoad(f, err)
	}

	result := StepsValidateResult{
		Name:      file.Name,
		StepCount: len(file.Steps),
		Errors:    steps.ValidateAll(file.Steps),
	}
	result.Valid = len(result.Errors) == 0

	if f.Format == "json" {
		if !result.Valid {
			return f.Fail(ExitFailure, result.Errors[0].Code,
				fmt.Sprintf("%d validation error(s)", len(result.Errors)), result)
		}
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	if result.Valid {
		fmt.Fprintf(w, "✓ %s: %d step(s) valid\n", result.Name, result.StepCount)
		return nil
	}
	fmt.Fprintf(w, "✗ %s: %d validation error(s)\n", result.Name, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
	return &ExitError{Code: ExitFailure, Message: "invalid steps", Reported: true}
}

// loadModel loads a step file and validates it into a model.
// Failures are reported through f.
func loadModel(f *OutputFormatter, path string) (*StepFile, *steps.Model, error) {
	file, err := LoadStepFile(path)
	if err != nil {
		return nil, nil, failLoad(f, err)
	}

	model, err := steps.Load(file.Steps)
	if err != nil {
		var verrs steps.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, nil, f.Fail(ExitFailure, verrs[0].Code, formatValidationErrors(verrs), verrs)
		}
		return nil, nil, f.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
	}
	return file, model, nil
}

// failLoad reports a step file load error.
func failLoad(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		details := map[string]any{}
		if loadErr.Pos.IsValid() {
			details["file"] = loadErr.Pos.Filename()
			details["line"] = loadErr.Pos.Line()
			details["column"] = loadErr.Pos.Column()
		}
		if len(details) == 0 {
			return f.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return f.Fail(ExitCommandError, loadErr.Code, loadErr.Error(), details)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}

func formatValidationErrors(errs []steps.ValidationError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(msgs, "; ")
}
