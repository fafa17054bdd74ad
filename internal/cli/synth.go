package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/autovnc/internal/config"
	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/session"
	"github.com/roach88/autovnc/internal/synth"
)

// SynthOptions holds flags for the synth command.
type SynthOptions struct {
	*RootOptions
	Output string
}

// SynthResult is the JSON payload of synth.
type SynthResult struct {
	Name              string `json:"name"`
	StepCount         int    `json:"step_count"`
	LineCount         int    `json:"generated_line_count"`
	GeneratedCodeHash string `json:"generated_code_hash"`
	Source            string `json:"source,omitempty"`
	Output            string `json:"output,omitempty"`
}

// NewSynthCommand creates the synth command.
func NewSynthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SynthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "synth <steps-file>",
		Short: "Synthesize a script from a step file",
		Long: `Synthesize an autovnc Python script from a YAML, JSON or CUE step file.

The steps are validated first. The script is written to stdout unless
--output is given.

Examples:
  autovnc synth login.yaml
  autovnc synth login.cue -o login.py
  autovnc synth login.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runSynth(opts *SynthOptions, cmd *cobra.Command, path string) error {
	f := newFormatter(opts.RootOptions, cmd)

	file, model, err := loadModel(f, path)
	if err != nil {
		return err
	}
	f.VerboseLog("Loaded %d step(s) from %s", model.Len(), path)

	generated := synthesizer(opts.settings(), file.Name).Synthesize(model.Steps(), file.Name, file.Description)
	source := generated + "\n"

	result := SynthResult{
		Name:              file.Name,
		StepCount:         model.Len(),
		LineCount:         synth.LineCount(generated),
		GeneratedCodeHash: ir.GeneratedCodeHash(generated),
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(source), 0o644); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing %s: %v", opts.Output, err), nil)
		}
		result.Output = opts.Output
		if f.Format == "json" {
			return f.Success(result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%d step(s), %d generated line(s))\n",
			opts.Output, result.StepCount, result.LineCount)
		return nil
	}

	if f.Format == "json" {
		result.Source = source
		return f.Success(result)
	}
	fmt.Fprint(cmd.OutOrStdout(), source)
	return nil
}

// synthesizer builds a Synthesizer with the configured wait threshold and
// connection defaults.
func synthesizer(cfg *config.Config, script string) *synth.Synthesizer {
	return synth.New(session.ConfigFromSettings(cfg, script).Synth)
}
