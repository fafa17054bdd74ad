package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// FileResult is the outcome of one scenario file. Err is set when the file
// could not be loaded or executed; otherwise Result holds the outcome.
type FileResult struct {
	Path     string
	Scenario *Scenario
	Result   *Result
	Err      error
}

// Passed reports whether the file loaded, ran and passed its assertions.
func (r FileResult) Passed() bool {
	return r.Err == nil && r.Result != nil && r.Result.Pass
}

// Discover returns the scenario files (*.yaml, *.yml) in dir, sorted.
func Discover(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("discover scenarios: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}

// RunAll loads and runs every scenario file with at most limit running at
// once; limit <= 0 uses GOMAXPROCS. Results are in paths order. A scenario
// failure is reported in its FileResult and does not stop the others; the
// returned error is non-nil only when ctx ends first.
func RunAll(ctx context.Context, paths []string, limit int, opts ...RunOption) ([]FileResult, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	results := make([]FileResult, len(paths))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		if groupCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			fr := FileResult{Path: path}
			fr.Scenario, fr.Err = LoadScenario(path)
			if fr.Err == nil {
				fr.Result, fr.Err = Run(groupCtx, fr.Scenario, opts...)
			}
			results[i] = fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
