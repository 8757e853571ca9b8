package preflight

import (
	"context"
	"strings"

	"docintake/internal/config"
	"docintake/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results are shown but never block a run.
	Optional bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Content directory", cfg.Paths.ContentDir))
	results = append(results, CheckDirectoryAccess("Metadata directory", cfg.Paths.MetadataDir))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	if cfg.Paths.SourceDir != "" {
		results = append(results, CheckReadableDirectory("Source directory", cfg.Paths.SourceDir))
	}
	if cfg.Worker.WorkingDir != "" {
		results = append(results, CheckReadableDirectory("Worker directory", cfg.Worker.WorkingDir))
	}
	results = append(results, CheckCheckpointFile(cfg.Checkpoint.Path))
	results = append(results, CheckCredentials(cfg.Worker)...)
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromStatus(status))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckSystemDeps evaluates the worker command and, for interpreter
// commands, its script argument.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	command := strings.TrimSpace(cfg.Worker.Command)
	var statuses []deps.Status
	if strings.ContainsRune(command, '/') {
		statuses = append(statuses, deps.CheckExecutable("Worker command", command))
	} else {
		statuses = append(statuses, deps.CheckBinaries([]deps.Requirement{{
			Name:        "Worker command",
			Command:     command,
			Description: "Classification worker",
		}})...)
	}
	statuses = append(statuses, deps.CheckWorkerScript(cfg.Worker.Args, cfg.Worker.WorkingDir))
	return statuses
}

func fromStatus(status deps.Status) Result {
	detail := status.Detail
	if status.Available {
		detail = status.Resolved
		if detail == "" {
			detail = status.Detail
		}
	}
	return Result{
		Name:     status.Name,
		Passed:   status.Available,
		Detail:   detail,
		Optional: status.Optional,
	}
}
