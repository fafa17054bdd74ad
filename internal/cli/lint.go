package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/autovnc/internal/synth"
	"github.com/roach88/autovnc/internal/validator"
)

// LintOptions holds flags for the lint command.
type LintOptions struct {
	*RootOptions
	GeneratedLines int
}

// LintResult is the JSON payload of lint.
type LintResult struct {
	Path           string              `json:"path"`
	GeneratedLines int                 `json:"generated_lines"`
	Findings       []validator.Finding `json:"findings"`
	Errors         int                 `json:"errors"`
	Warnings       int                 `json:"warnings"`
	Conflicts      int                 `json:"conflicts"`
}

// NewLintCommand creates the lint command.
func NewLintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lint <source-file>",
		Short: "Check a script's source",
		Long: `Run the advisory source checks over a script file.

Structure errors, style warnings and conflicts between the hand-written
code and the generated region are reported. The generated region is
detected from the script header unless --generated-lines is given.

Exit codes:
  0 - No error findings (warnings and conflicts are advisory)
  1 - One or more error findings
  2 - The file could not be read

Examples:
  autovnc lint login.py
  autovnc lint login.py --generated-lines 42 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.GeneratedLines, "generated-lines", -1, "line count of the generated region (default: detect)")

	return cmd
}

func runLint(opts *LintOptions, cmd *cobra.Command, path string) error {
	f := newFormatter(opts.RootOptions, cmd)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("source file not found: %s", path), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeReadFailed, fmt.Sprintf("reading %s: %v", path, err), nil)
	}
	text := string(data)

	n := opts.GeneratedLines
	if n < 0 {
		n = synth.DetectGeneratedLines(text)
		f.VerboseLog("Detected %d generated line(s)", n)
	}

	report := validator.Validate(text, n)
	result := LintResult{
		Path:           path,
		GeneratedLines: n,
		Findings:       report.Findings,
		Errors:         len(report.Errors()),
		Warnings:       len(report.Warnings()),
		Conflicts:      len(report.Conflicts()),
	}
	if result.Findings == nil {
		result.Findings = []validator.Finding{}
	}

	if f.Format == "json" {
		if result.Errors > 0 {
			return f.Fail(ExitFailure, ErrCodeLintFailed, fmt.Sprintf("%d error finding(s)", result.Errors), result)
		}
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	for _, finding := range result.Findings {
		fmt.Fprintln(w, finding.String())
	}
	if result.Errors > 0 {
		fmt.Fprintf(w, "✗ %s: %d error(s), %d warning(s), %d conflict(s)\n",
			path, result.Errors, result.Warnings, result.Conflicts)
		return &ExitError{Code: ExitFailure, Message: "source has errors", Reported: true}
	}
	fmt.Fprintf(w, "✓ %s: %d warning(s), %d conflict(s)\n", path, result.Warnings, result.Conflicts)
	return nil
}
