package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/autovnc/internal/clock"
	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/observability"
	"github.com/roach88/autovnc/internal/session"
	"github.com/roach88/autovnc/internal/store"
	"github.com/roach88/autovnc/internal/validator"
)

// ResynthResult is the JSON payload of script resynth and script import.
type ResynthResult struct {
	Name               string              `json:"name"`
	StepCount          int                 `json:"step_count"`
	GeneratedLineCount int                 `json:"generated_line_count"`
	Conflict           bool                `json:"conflict"`
	Findings           []validator.Finding `json:"findings,omitempty"`
}

// NewScriptCommand creates the script command group. Every subcommand works
// on the store at store.path (or --db).
func NewScriptCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Manage stored scripts",
		Long: `Manage the scripts kept in the local script database.

Examples:
  autovnc script list
  autovnc script create login --description "Log into the console"
  autovnc script import login.yaml --name login
  autovnc script show login --source
  autovnc script resynth login`,
	}

	cmd.AddCommand(
		newScriptListCommand(rootOpts),
		newScriptCreateCommand(rootOpts),
		newScriptShowCommand(rootOpts),
		newScriptDeleteCommand(rootOpts),
		newScriptRenameCommand(rootOpts),
		newScriptEjectCommand(rootOpts),
		newScriptResynthCommand(rootOpts),
		newScriptImportCommand(rootOpts),
		newScriptTemplatesCommand(rootOpts),
	)
	return cmd
}

// storeCommand builds a subcommand whose RunE receives an open store.
func storeCommand(rootOpts *RootOptions, use, short string, args cobra.PositionalArgs,
	run func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			st, err := openStore(rootOpts)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
			}
			defer st.Close()
			return run(cmd.Context(), f, st, args)
		},
	}
}

// openStore opens the configured script database, creating its directory.
func openStore(opts *RootOptions) (*store.Store, error) {
	path := opts.settings().Store.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	st, err := store.Open(path, store.WithLogger(observability.GetLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to open script database %s: %w", path, err)
	}
	return st, nil
}

// failStore reports a store error; missing scripts are exit code 1.
func failStore(f *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return f.Fail(ExitFailure, ErrCodeNotFound, err.Error(), nil)
	case errors.Is(err, store.ErrExists):
		return f.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
	default:
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
}

func newScriptListCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "list", "List scripts, most recently updated first", cobra.NoArgs,
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			summaries, err := st.ListScripts(ctx)
			if err != nil {
				return failStore(f, err)
			}
			if summaries == nil {
				summaries = []ir.ScriptSummary{}
			}
			return f.Render(summaries, func(w io.Writer) error {
				if len(summaries) == 0 {
					_, err := fmt.Fprintln(w, "No scripts.")
					return err
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSTEPS\tUPDATED\tDESCRIPTION")
				for _, s := range summaries {
					name := s.Name
					if s.IsEjected {
						name += " (ejected)"
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", name, s.StepCount, s.UpdatedAt.Format(time.RFC3339), s.Description)
				}
				return tw.Flush()
			})
		})
}

func newScriptCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var description string
	cmd := storeCommand(rootOpts, "create <name>", "Create an empty script", cobra.ExactArgs(1),
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			script, err := st.CreateScript(ctx, args[0], description)
			if err != nil {
				return failStore(f, err)
			}
			return f.Done(script.Metadata, "Created %s", script.Metadata.Name)
		})
	cmd.Flags().StringVarP(&description, "description", "d", "", "script description")
	return cmd
}

func newScriptShowCommand(rootOpts *RootOptions) *cobra.Command {
	var sourceOnly bool
	cmd := storeCommand(rootOpts, "show <name>", "Show a script's steps and source", cobra.ExactArgs(1),
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			script, err := st.GetScript(ctx, args[0])
			if err != nil {
				return failStore(f, err)
			}
			return f.Render(script, func(w io.Writer) error {
				if sourceOnly {
					_, err := io.WriteString(w, script.Code)
					return err
				}
				return writeScript(w, script)
			})
		})
	cmd.Flags().BoolVar(&sourceOnly, "source", false, "print only the source")
	return cmd
}

func writeScript(w io.Writer, script ir.Script) error {
	md := script.Metadata
	fmt.Fprintf(w, "Script: %s\n", md.Name)
	if md.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", md.Description)
	}
	fmt.Fprintf(w, "Updated: %s\n", md.UpdatedAt.Format(time.RFC3339))
	if md.IsEjected {
		fmt.Fprintln(w, "Ejected: yes")
	}
	fmt.Fprintf(w, "Steps (%d):\n", len(script.Steps))
	for _, s := range script.Steps {
		fmt.Fprintf(w, "  %d. %s %s\n", s.Order+1, s.Type, s.ID)
	}
	if len(script.Templates) > 0 {
		fmt.Fprintf(w, "Templates: %v\n", script.Templates)
	}
	if script.Code == "" {
		return nil
	}
	_, err := fmt.Fprintf(w, "\n%s", script.Code)
	return err
}

func newScriptDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "delete <name>", "Delete a script and its templates", cobra.ExactArgs(1),
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			if err := st.DeleteScript(ctx, args[0]); err != nil {
				return failStore(f, err)
			}
			return f.Done(map[string]string{"deleted": args[0]}, "Deleted %s", args[0])
		})
}

func newScriptRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "rename <name> <new-name>", "Rename a script", cobra.ExactArgs(2),
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			if err := st.RenameScript(ctx, args[0], args[1]); err != nil {
				return failStore(f, err)
			}
			return f.Done(map[string]string{"from": args[0], "to": args[1]}, "Renamed %s to %s", args[0], args[1])
		})
}

func newScriptEjectCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "eject <name>", "Stop regenerating a script; its source becomes hand-maintained", cobra.ExactArgs(1),
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			if err := st.EjectScript(ctx, args[0]); err != nil {
				return failStore(f, err)
			}
			return f.Done(map[string]string{"ejected": args[0]}, "Ejected %s", args[0])
		})
}

func newScriptResynthCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "resynth <name>", "Regenerate a script's generated region", cobra.ExactArgs(1),
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			script, err := st.GetScript(ctx, args[0])
			if err != nil {
				return failStore(f, err)
			}
			return resynthAndSave(ctx, rootOpts, f, st, script)
		})
}

func newScriptImportCommand(rootOpts *RootOptions) *cobra.Command {
	var name string
	cmd := storeCommand(rootOpts, "import <steps-file>", "Replace a script's steps from a step file", cobra.ExactArgs(1),
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			file, model, err := loadModel(f, args[0])
			if err != nil {
				return err
			}
			scriptName := name
			if scriptName == "" {
				scriptName = file.Name
			}

			script, err := st.GetScript(ctx, scriptName)
			switch {
			case errors.Is(err, store.ErrNotFound):
				script = ir.Script{Metadata: ir.ScriptMetadata{Name: scriptName}}
			case err != nil:
				return failStore(f, err)
			}
			script.Steps = model.Steps()
			if file.Description != "" {
				script.Metadata.Description = file.Description
			}
			return resynthAndSave(ctx, rootOpts, f, st, script)
		})
	cmd.Flags().StringVar(&name, "name", "", "script name (default: the file's name)")
	return cmd
}

// resynthAndSave regenerates the generated region of script from its steps,
// keeping the manual region, and saves the result. Ejected scripts are
// refused.
func resynthAndSave(ctx context.Context, opts *RootOptions, f *OutputFormatter, st *store.Store, script ir.Script) error {
	name := script.Metadata.Name
	if script.Metadata.IsEjected {
		return f.Fail(ExitFailure, ErrCodeEjected, fmt.Sprintf("script %q is ejected and is no longer regenerated", name), nil)
	}

	logger := observability.GetLogger()
	sess, err := session.New(session.ConfigFromSettings(opts.settings(), name), clock.Real{}, st,
		session.WithScript(script),
		session.WithLogger(logger))
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
	}

	res := sess.Resynthesize()
	snapshot := sess.Snapshot()
	if err := st.SaveScript(ctx, snapshot); err != nil {
		return failStore(f, err)
	}
	logger.Info("script resynthesized", zap.String("script", name),
		zap.Int("steps", len(snapshot.Steps)), zap.Bool("conflict", res.Conflict))

	result := ResynthResult{
		Name:               name,
		StepCount:          len(snapshot.Steps),
		GeneratedLineCount: snapshot.CodeMetadata.GeneratedLineCount,
		Conflict:           res.Conflict,
		Findings:           sess.Validate().Findings,
	}
	return f.Render(result, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ Resynthesized %s (%d step(s), %d generated line(s))\n",
			name, result.StepCount, result.GeneratedLineCount)
		if res.Conflict {
			fmt.Fprintln(w, "  ! edits inside the generated region were kept as manual code")
		}
		for _, finding := range result.Findings {
			fmt.Fprintf(w, "  %s\n", finding.String())
		}
		return nil
	})
}

func newScriptTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	var extractDir string
	cmd := storeCommand(rootOpts, "templates <name>", "List or extract a script's templates", cobra.ExactArgs(1),
		func(ctx context.Context, f *OutputFormatter, st *store.Store, args []string) error {
			if _, err := st.GetScript(ctx, args[0]); err != nil {
				return failStore(f, err)
			}
			names, err := st.List(ctx, args[0])
			if err != nil {
				return failStore(f, err)
			}

			if extractDir != "" {
				if err := os.MkdirAll(extractDir, 0o755); err != nil {
					return f.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
				}
				for _, name := range names {
					data, err := st.Fetch(ctx, args[0], name)
					if err != nil {
						return failStore(f, err)
					}
					if err := os.WriteFile(filepath.Join(extractDir, name), data, 0o644); err != nil {
						return f.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
					}
				}
				f.VerboseLog("Extracted %d template(s) to %s", len(names), extractDir)
			}

			if names == nil {
				names = []string{}
			}
			return f.Render(map[string]any{"script": args[0], "templates": names}, func(w io.Writer) error {
				if len(names) == 0 {
					_, err := fmt.Fprintln(w, "No templates.")
					return err
				}
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
				return nil
			})
		})
	cmd.Flags().StringVar(&extractDir, "extract", "", "write the template images to this directory")
	return cmd
}
