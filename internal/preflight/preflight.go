package preflight

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"tessera/internal/config"
	"tessera/internal/faults"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

func (r Result) marker() error {
	switch r.Name {
	case optimizerCheckName:
		return faults.ErrExternalTool
	case inputCheckName:
		return faults.ErrResource
	default:
		return faults.ErrOutput
	}
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckReadableDirectory(inputCheckName, cfg.Paths.InputDir))

	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckCreatableDirectory("Output directory", cfg.Paths.OutputDir))
	}
	if cfg.Paths.TempDir != "" {
		results = append(results, CheckCreatableDirectory("Temp directory", cfg.Paths.TempDir))
	}
	if cfg.Paths.ManifestPath != "" {
		results = append(results, CheckCreatableDirectory("Manifest directory", filepath.Dir(cfg.Paths.ManifestPath)))
	}
	if cfg.Optimizer.Enabled {
		results = append(results, CheckOptimizer(ctx, cfg))
	}
	return results
}

// Err folds failed results into a single error marked after the first
// failure: faults.ErrExternalTool for the optimizer, faults.ErrResource for
// the scene directory, faults.ErrOutput otherwise.
func Err(results []Result) error {
	var failed []string
	var marker error
	for _, r := range results {
		if r.Passed {
			continue
		}
		if marker == nil {
			marker = r.marker()
		}
		failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(failed) == 0 {
		return nil
	}
	return faults.Wrap(marker, "preflight", "check", strings.Join(failed, "; "), nil)
}
