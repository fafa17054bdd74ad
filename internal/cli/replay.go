package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/autovnc/internal/harness"
	"github.com/roach88/autovnc/internal/observability"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Output string // "source" | "trace" | "all"
}

// ReplayResult is the JSON payload of replay.
type ReplayResult struct {
	Name string `json:"name"`
	*harness.Result
}

var replayOutputs = []string{"source", "trace", "all"}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario-file>",
		Short: "Replay a capture scenario",
		Long: `Replay one recorded capture scenario through a live session and print
the resulting steps and source.

The scenario's timed events drive a fake clock, so the output is the same
on every run.

Exit codes:
  0 - The scenario ran and its assertions hold
  1 - One or more assertions failed
  2 - Command error (missing or invalid scenario)

Examples:
  autovnc replay scenarios/login_flow.yaml
  autovnc replay scenarios/login_flow.yaml --show trace
  autovnc replay scenarios/login_flow.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Output, "show", "all", "what to print in text mode (source|trace|all)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, path string) error {
	f := newFormatter(opts.RootOptions, cmd)
	if !slices.Contains(replayOutputs, opts.Output) {
		return f.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("invalid --show %q: must be one of %v", opts.Output, replayOutputs), nil)
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeParseFailed, err.Error(), nil)
	}

	result, err := harness.Run(cmd.Context(), scenario, harness.WithLogger(observability.GetLogger()))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("replay %s: %v", scenario.Name, err), nil)
	}

	if f.Format == "json" {
		payload := ReplayResult{Name: scenario.Name, Result: result}
		if !result.Pass {
			return f.Fail(ExitFailure, ErrCodeTestFailed,
				fmt.Sprintf("%d assertion(s) failed", len(result.Errors)), payload)
		}
		return f.Success(payload)
	}

	w := cmd.OutOrStdout()
	if opts.Output != "source" {
		fmt.Fprintf(w, "Scenario: %s (%d step(s))\n", scenario.Name, len(result.Steps))
		for _, ev := range result.Trace {
			if ev.Warning != "" {
				fmt.Fprintf(w, "  [%d] warning: %s\n", ev.Seq, ev.Warning)
			}
			if ev.StepType != "" {
				fmt.Fprintf(w, "  [%d] %s %s (%s, line %d)\n", ev.Seq, ev.StepType, ev.StepID, ev.Placement, ev.Line)
			}
		}
		for _, finding := range result.Findings {
			fmt.Fprintf(w, "  %s\n", finding.String())
		}
	}
	if opts.Output != "trace" {
		if opts.Output == "all" {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, result.Source)
	}

	if !result.Pass {
		fmt.Fprintln(w)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ %s\n", e)
		}
		return &ExitError{Code: ExitFailure, Message: "scenario assertions failed", Reported: true}
	}
	return nil
}
