package preflight

import (
	"context"
	"fmt"

	"shuttle/internal/config"
	"shuttle/internal/deps"
)

// minFreeBytes is the free space below which a writable directory fails.
const minFreeBytes uint64 = 1 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for cfg. The staging and output
// directories must be writable with room for segments; required binaries
// must be resolvable.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, minFreeBytes),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckFreeSpace("Output free space", cfg.Paths.OutputDir, minFreeBytes),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	for _, status := range deps.Check(cfg) {
		if ctx.Err() != nil {
			break
		}
		results = append(results, fromDependency(status))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromDependency(status deps.Status) Result {
	name := status.Name
	if status.Available {
		return Result{Name: name, Passed: true, Detail: status.Command}
	}
	if status.Optional {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (optional)", status.Detail)}
	}
	return Result{Name: name, Detail: status.Detail}
}
