package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/autovnc/internal/config"
	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	StorePath  string // overrides store.path when set

	// Config is loaded before any subcommand runs.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the autovnc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "autovnc",
		Short: "autovnc - record VNC interactions as scripts",
		Long: `Turn captured VNC interactions into editable autovnc Python scripts.

Steps are synthesized into a generated region that can be regenerated at
any time without losing the hand-written code that follows it.`,
		Version:       fmt.Sprintf("%s (script format %s)", ir.SynthVersion, ir.FormatVersion),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			cfg, err := config.Load(opts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			if opts.StorePath != "" {
				cfg.Store.Path = opts.StorePath
			}
			if opts.Verbose {
				cfg.Logger.Level = "debug"
			}
			observability.InitializeLogger(cfg.Logger)
			opts.Config = cfg
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./autovnc.yaml or ~/.autovnc/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.StorePath, "db", "", "script database path (overrides store.path)")

	cmd.AddCommand(NewSynthCommand(opts))
	cmd.AddCommand(NewStepsCommand(opts))
	cmd.AddCommand(NewLintCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewScriptCommand(opts))

	return cmd
}

// Execute runs the command tree and returns the process exit code. Errors
// that commands did not already report are printed to stderr.
func Execute(ctx context.Context) int {
	defer observability.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	if exitErr == nil {
		// cobra argument and flag errors
		return ExitCommandError
	}
	return exitErr.Code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newFormatter returns the formatter for a command's output streams.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// settings returns the loaded configuration, or the defaults when the root
// pre-run hook did not run (commands executed directly in tests).
func (o *RootOptions) settings() *config.Config {
	if o.Config == nil {
		o.Config = config.NewDefaultConfig()
		if o.StorePath != "" {
			o.Config.Store.Path = o.StorePath
		}
	}
	return o.Config
}
