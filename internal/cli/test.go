package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/autovnc/internal/harness"
	"github.com/roach88/autovnc/internal/observability"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Parallel  int
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // compare sources against <dir>/<name>.golden
	Update    bool   // regenerate golden files
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every capture scenario in a directory",
		Long: `Run every scenario file (*.yaml, *.yml) in a directory concurrently.

Each scenario is replayed through its own session and store. With --golden
the synthesized source is also compared with <golden-dir>/<name>.golden.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  autovnc test ./scenarios
  autovnc test ./scenarios --filter "login*" --parallel 2
  autovnc test ./scenarios --golden ./golden --update
  autovnc test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "scenarios to run at once (default GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden source files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (requires --golden)")

	return cmd
}

func runTests(opts *TestOptions, cmd *cobra.Command, dir string) error {
	f := newFormatter(opts.RootOptions, cmd)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", dir), nil)
	}
	if opts.Update && opts.GoldenDir == "" {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "--update requires --golden", nil)
	}

	paths, err := discoverScenarios(dir, opts.Filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	if len(paths) == 0 {
		if f.Format == "json" {
			return f.Success(TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	f.VerboseLog("Running %d scenario(s)", len(paths))
	files, err := harness.RunAll(cmd.Context(), paths, opts.Parallel, harness.WithLogger(observability.GetLogger()))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("test run interrupted: %v", err), nil)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, fr := range files {
		sr := scenarioResult(opts, f, fr)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if f.Format == "json" {
		if result.Failed > 0 {
			return f.Fail(ExitFailure, ErrCodeTestFailed,
				fmt.Sprintf("%d scenario(s) failed", result.Failed), result)
		}
		return f.Success(result)
	}
	return outputTestText(cmd, result)
}

// discoverScenarios lists scenario files, keeping those whose base name
// without extension matches filter.
func discoverScenarios(dir, filter string) ([]string, error) {
	paths, err := harness.Discover(dir)
	if err != nil || filter == "" {
		return paths, err
	}
	var kept []string
	for _, path := range paths {
		matched, err := filepath.Match(filter, scenarioName(path))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			kept = append(kept, path)
		}
	}
	return kept, nil
}

func scenarioResult(opts *TestOptions, f *OutputFormatter, fr harness.FileResult) ScenarioResult {
	sr := ScenarioResult{Name: scenarioName(fr.Path), Path: fr.Path}
	if fr.Scenario != nil {
		sr.Name = fr.Scenario.Name
	}
	if fr.Err != nil {
		sr.Errors = []string{fr.Err.Error()}
		return sr
	}

	sr.Pass = fr.Result.Pass
	sr.Errors = fr.Result.Errors
	if opts.GoldenDir == "" {
		return sr
	}

	goldenPath := filepath.Join(opts.GoldenDir, sr.Name+".golden")
	if opts.Update {
		if err := writeGolden(goldenPath, fr.Result.Source); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
		}
		return sr
	}

	want, err := os.ReadFile(goldenPath)
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return sr
	}
	if diff := cmp.Diff(string(want), fr.Result.Source); diff != "" {
		sr.Pass = false
		sr.Errors = append(sr.Errors, "source does not match golden file (run with --update to regenerate)")
		f.VerboseLog("%s golden mismatch (-want +got):\n%s", sr.Name, diff)
	}
	return sr
}

func writeGolden(path, source string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func scenarioName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return &ExitError{
			Code:     ExitFailure,
			Message:  fmt.Sprintf("%d scenario(s) failed", result.Failed),
			Reported: true,
		}
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
