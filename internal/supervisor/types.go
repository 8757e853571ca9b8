package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docintake/internal/events"
)

// State is the worker lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateTerminated State = "terminated"
)

// Active reports whether a worker process exists or is being created.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// ErrNoRun is returned by Wait before the first Start.
var ErrNoRun = errors.New("no worker run has been started")

// Command describes the worker invocation. Env entries overlay the
// supervisor's own environment.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
	Dir  string
}

// StartResult describes the outcome of Start.
type StartResult struct {
	AlreadyRunning bool
	PID            int
	RunID          string
}

// SpawnError reports a worker that could not be started at all.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn worker %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Snapshot is a point-in-time view of the supervisor.
type Snapshot struct {
	State     State
	PID       int
	RunID     string
	StartedAt time.Time
	// ExitCode is valid once State is Terminated; -1 means killed by a
	// signal or never started.
	ExitCode int
}

// RunInfo identifies a run when it starts.
type RunInfo struct {
	RunID     string
	Command   string
	Args      []string
	PID       int
	StartedAt time.Time
}

// RunSummary is the final record of a run.
type RunSummary struct {
	RunInfo
	FinishedAt time.Time
	ExitCode   int
	Completion events.Completion
	Results    int
	Failures   int
	Stopped    bool
	SpawnError string
}

// Duration is the wall time of the run.
func (r RunSummary) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CheckpointAppender records completed item ids.
type CheckpointAppender interface {
	Append(id string) error
}

// RunRecorder persists run history.
type RunRecorder interface {
	RecordStart(ctx context.Context, info RunInfo) error
	RecordFinish(ctx context.Context, summary RunSummary) error
}
