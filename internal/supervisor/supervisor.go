package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docintake/internal/events"
	"docintake/internal/logging"
	"docintake/internal/metrics"
	"docintake/internal/statusbus"
)

const (
	// DefaultStopTimeout is the grace period between SIGTERM and SIGKILL.
	DefaultStopTimeout = 5 * time.Second

	// outputWaitDelay bounds how long output is drained after the worker
	// exits, for when a leftover child still holds stdout or stderr open.
	outputWaitDelay = 2 * time.Second
	killWaitTimeout = 5 * time.Second
	recordTimeout   = 5 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	Bus        *statusbus.Bus
	Checkpoint CheckpointAppender
	Recorder   RunRecorder
	Logger     *slog.Logger

	// Heuristic enables marker-phrase completion detection.
	Heuristic   bool
	Markers     []string
	StopTimeout time.Duration
}

// Supervisor runs one worker at a time.
type Supervisor struct {
	bus         *statusbus.Bus
	checkpoint  CheckpointAppender
	recorder    RunRecorder
	logger      *slog.Logger
	heuristic   bool
	markers     []string
	stopTimeout time.Duration

	mu       sync.Mutex
	state    State
	current  *run
	exitCode int
}

// run is the per-spawn state. Fields below mu are written by the output
// copying goroutines.
type run struct {
	info    RunInfo
	cmd     *exec.Cmd
	logger  *slog.Logger
	done    chan struct{}
	summary RunSummary
	outputs []*streamWriter

	mu         sync.Mutex
	completion *events.Completion
	// marker holds a heuristic completion until the exit code is known.
	marker   *events.Event
	results  int
	failures int
	stopped  bool
	sampler  *logging.ProgressSampler
}

// New returns an idle supervisor. A nil Bus gets a private one.
func New(opts Options) *Supervisor {
	logger := logging.NewComponentLogger(opts.Logger, "supervisor")
	bus := opts.Bus
	if bus == nil {
		bus = statusbus.New(opts.Logger)
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Supervisor{
		bus:         bus,
		checkpoint:  opts.Checkpoint,
		recorder:    opts.Recorder,
		logger:      logger,
		heuristic:   opts.Heuristic,
		markers:     append([]string(nil), opts.Markers...),
		stopTimeout: stopTimeout,
		state:       StateIdle,
		exitCode:    -1,
	}
}

// Bus returns the bus events are published on.
func (s *Supervisor) Bus() *statusbus.Bus {
	return s.bus
}

// Start spawns the worker unless one is already active, in which case it
// returns AlreadyRunning without spawning. A worker that cannot be started
// yields a *SpawnError; no completion event is published for it. Cancelling
// ctx stops the worker gracefully.
func (s *Supervisor) Start(ctx context.Context, command Command) (StartResult, error) {
	s.mu.Lock()
	if s.state.Active() {
		res := StartResult{AlreadyRunning: true}
		if s.current != nil {
			res.PID = s.current.info.PID
			res.RunID = s.current.info.RunID
		}
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("start ignored; worker already active",
			logging.String("state", string(state)),
			logging.String(logging.FieldRunID, res.RunID),
		)
		return res, nil
	}

	s.state = StateStarting
	r := &run{
		info: RunInfo{
			RunID:     uuid.NewString(),
			Command:   command.Path,
			Args:      append([]string(nil), command.Args...),
			StartedAt: time.Now(),
		},
		done:    make(chan struct{}),
		sampler: logging.NewProgressSampler(10),
	}
	r.logger = s.logger.With(logging.String(logging.FieldRunID, r.info.RunID))
	s.current = r

	cmd := exec.Command(command.Path, command.Args...) //nolint:gosec
	cmd.Dir = command.Dir
	cmd.Env = mergeEnv(os.Environ(), command.Env)
	configureProcess(cmd)
	r.cmd = cmd
	stdout := s.newStreamWriter(r, events.StreamStdout)
	stderr := s.newStreamWriter(r, events.StreamStderr)
	r.outputs = []*streamWriter{stdout, stderr}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = outputWaitDelay

	if err := cmd.Start(); err != nil {
		spawnErr := &SpawnError{Path: command.Path, Err: err}
		s.state = StateTerminated
		s.exitCode = -1
		r.summary = RunSummary{
			RunInfo:    r.info,
			FinishedAt: time.Now(),
			ExitCode:   -1,
			Completion: events.Completion{Success: false, ExitCode: -1, Message: spawnErr.Error()},
			SpawnError: spawnErr.Error(),
		}
		close(r.done)
		s.mu.Unlock()

		s.reportSpawnFailure(r, spawnErr)
		return StartResult{RunID: r.info.RunID}, spawnErr
	}
	s.state = StateRunning
	r.info.PID = cmd.Process.Pid
	s.mu.Unlock()

	s.launch(ctx, r)
	return StartResult{PID: r.info.PID, RunID: r.info.RunID}, nil
}

func (s *Supervisor) reportSpawnFailure(r *run, spawnErr *SpawnError) {
	metrics.RecordSpawnFailure()
	logging.ErrorWithContext(r.logger, "worker spawn failed", "worker_spawn_failed",
		logging.String("command", r.info.Command),
		logging.Error(spawnErr.Err),
		logging.String(logging.FieldErrorHint, "check worker.command and worker.working_dir; run 'docintake check'"),
	)
	s.bus.Publish(events.Event{
		Kind:    events.KindError,
		Time:    time.Now(),
		Stream:  events.StreamSupervisor,
		RunID:   r.info.RunID,
		Message: spawnErr.Error(),
	})
	s.record(func(ctx context.Context) error {
		if err := s.recorder.RecordStart(ctx, r.info); err != nil {
			return err
		}
		return s.recorder.RecordFinish(ctx, r.summary)
	})
}

// launch records the start, reaps the process in the background, and stops
// the worker if ctx is cancelled while this run is still current.
func (s *Supervisor) launch(ctx context.Context, r *run) {
	metrics.RecordRunStarted()
	r.logger.Info("worker started",
		logging.String("command", r.info.Command),
		logging.Int("pid", r.info.PID),
		logging.String(logging.FieldEventType, "worker_started"),
	)
	s.record(func(ctx context.Context) error { return s.recorder.RecordStart(ctx, r.info) })

	go func() {
		s.finish(r, r.cmd.Wait())
	}()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				if err := s.stopRun(r, 0, "context cancelled"); err != nil {
					r.logger.Warn("stop after cancellation failed", logging.Error(err))
				}
			case <-r.done:
			}
		}()
	}
}

// streamWriter feeds one output stream through its own parser. exec copies
// each stream on a single goroutine, so Write is never called concurrently
// and never after Wait returns.
type streamWriter struct {
	sup    *Supervisor
	run    *run
	parser *events.Parser
}

func (s *Supervisor) newStreamWriter(r *run, stream events.Stream) *streamWriter {
	return &streamWriter{
		sup: s,
		run: r,
		parser: events.NewParser(events.Options{
			Stream:    stream,
			Heuristic: s.heuristic,
			Markers:   s.markers,
		}),
	}
}

func (w *streamWriter) Write(p []byte) (int, error) {
	for _, ev := range w.parser.Feed(p) {
		w.sup.dispatch(w.run, ev)
	}
	return len(p), nil
}

func (w *streamWriter) flush() {
	for _, ev := range w.parser.Flush() {
		w.sup.dispatch(w.run, ev)
	}
}

// dispatch stamps, filters, and publishes one event. Only the first
// completion of a run is published.
func (s *Supervisor) dispatch(r *run, ev events.Event) {
	ev.RunID = r.info.RunID

	switch ev.Kind {
	case events.KindComplete:
		if ev.Completion.Source == events.SourceHeuristic {
			s.holdMarker(r, ev)
			return
		}
		if !s.claimCompletion(r, ev) {
			return
		}
	case events.KindResult:
		s.handleResult(r, ev)
	case events.KindProgress:
		if ev.Progress == nil {
			break
		}
		r.mu.Lock()
		emit := r.sampler.ShouldLog(ev.Progress.Percent(), ev.Progress.Phase)
		r.mu.Unlock()
		if emit {
			r.logger.Info("worker progress",
				logging.Int("current", ev.Progress.Current),
				logging.Int("total", ev.Progress.Total),
				logging.String("item", ev.Progress.Item),
			)
		}
	case events.KindError:
		r.logger.Warn("worker reported error",
			logging.String("message", ev.Message),
			logging.String(logging.FieldEventType, "worker_error"),
			logging.String(logging.FieldErrorHint, "see the worker output above"),
			logging.String(logging.FieldImpact, "the affected document may be retried on the next run"),
		)
	case events.KindLog, events.KindUnknown:
		r.logger.Debug("worker output", logging.String("stream", string(ev.Stream)), logging.String("line", ev.Raw))
	}

	s.publish(ev)
}

func (s *Supervisor) publish(ev events.Event) {
	metrics.RecordEvent(string(ev.Kind), string(ev.Stream))
	s.bus.Publish(ev)
}

// claimCompletion makes ev the run's completion unless one was already
// published.
func (s *Supervisor) claimCompletion(r *run, ev events.Event) bool {
	r.mu.Lock()
	if r.completion != nil {
		r.mu.Unlock()
		r.logger.Debug("duplicate completion ignored", logging.String("source", string(ev.Completion.Source)))
		return false
	}
	c := *ev.Completion
	r.completion = &c
	r.mu.Unlock()
	r.logger.Info("worker reported completion",
		logging.Bool("success", c.Success),
		logging.String("source", string(c.Source)),
		logging.String(logging.FieldEventType, "worker_completion"),
	)
	return true
}

// holdMarker keeps the first heuristic completion back. It is published at
// exit with the real exit code unless a structured completion arrives first.
func (s *Supervisor) holdMarker(r *run, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.marker != nil || r.completion != nil {
		return
	}
	r.marker = &ev
	r.logger.Debug("completion marker seen; waiting for worker exit", logging.String("message", ev.Completion.Message))
}

func (s *Supervisor) handleResult(r *run, ev events.Event) {
	success := ev.IsSuccessfulResult()
	r.mu.Lock()
	if success {
		r.results++
	} else {
		r.failures++
	}
	r.mu.Unlock()
	metrics.RecordResult(success)

	if !success || s.checkpoint == nil {
		return
	}
	err := s.checkpoint.Append(ev.Result.ID)
	metrics.RecordCheckpointAppend(err)
	if err != nil {
		logging.WarnWithContext(r.logger, "checkpoint append failed", "checkpoint_append_failed",
			logging.String("id", ev.Result.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the checkpoint file"),
			logging.String(logging.FieldImpact, "this document will be processed again on the next run"),
		)
	}
}

// finish runs once the process was reaped and its output drained.
func (s *Supervisor) finish(r *run, waitErr error) {
	for _, out := range r.outputs {
		out.flush()
	}
	exitCode := -1
	if r.cmd.ProcessState != nil {
		exitCode = r.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil, errors.As(waitErr, &exitErr):
	case errors.Is(waitErr, exec.ErrWaitDelay):
		logging.WarnWithContext(r.logger, "worker exited but its output stayed open", "worker_output_held",
			logging.Duration("drain_limit", outputWaitDelay),
			logging.String(logging.FieldErrorHint, "a background child of the worker kept stdout or stderr open"),
			logging.String(logging.FieldImpact, "output written by that child after exit is not captured"),
		)
	default:
		r.logger.Warn("wait for worker failed", logging.Error(waitErr))
	}

	r.mu.Lock()
	observed := r.completion
	marker := r.marker
	stopped := r.stopped
	r.mu.Unlock()

	if observed == nil {
		ev := exitCompletion(r, marker, exitCode, stopped)
		if s.claimCompletion(r, ev) {
			s.publish(ev)
		}
	}

	r.mu.Lock()
	summary := RunSummary{
		RunInfo:    r.info,
		FinishedAt: time.Now(),
		ExitCode:   exitCode,
		Completion: *r.completion,
		Results:    r.results,
		Failures:   r.failures,
		Stopped:    stopped,
	}
	r.mu.Unlock()

	metrics.RecordRunFinished(summary.Completion.Success, string(summary.Completion.Source), summary.Duration())
	r.logger.Info("worker exited",
		logging.Int("exit_code", exitCode),
		logging.Bool("success", summary.Completion.Success),
		logging.Int("results", summary.Results),
		logging.Int("failures", summary.Failures),
		logging.Duration("elapsed", summary.Duration().Round(time.Millisecond)),
		logging.String(logging.FieldEventType, "worker_exited"),
	)
	s.record(func(ctx context.Context) error { return s.recorder.RecordFinish(ctx, summary) })

	s.mu.Lock()
	r.summary = summary
	if s.current == r {
		s.state = StateTerminated
		s.exitCode = exitCode
	}
	close(r.done)
	s.mu.Unlock()
}

// exitCompletion builds the completion published at exit when the worker
// never sent a structured one. A held marker keeps its heuristic source but
// takes its outcome from the exit code.
func exitCompletion(r *run, marker *events.Event, exitCode int, stopped bool) events.Event {
	ev := events.Event{
		Kind:    events.KindComplete,
		Time:    time.Now(),
		Stream:  events.StreamSupervisor,
		RunID:   r.info.RunID,
		Message: exitMessage(exitCode, stopped),
		Completion: &events.Completion{
			Success:  exitCode == 0,
			ExitCode: exitCode,
			Source:   events.SourceSynthetic,
			Message:  exitMessage(exitCode, stopped),
		},
	}
	if marker == nil {
		return ev
	}
	held := *marker
	c := *marker.Completion
	c.ExitCode = exitCode
	c.Success = exitCode == 0
	if !c.Success {
		c.Message += "; " + exitMessage(exitCode, stopped)
	}
	held.Completion = &c
	return held
}

// Stop asks the worker to exit with SIGTERM and sends SIGKILL once timeout
// elapses (the configured stop timeout when timeout <= 0). It returns when
// the worker is gone and is a no-op when nothing is running.
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	return s.stopRun(r, timeout, "stop requested")
}

// stopRun stops r only while it is the active run, so a late stop for a run
// that already ended never reaches its successor.
func (s *Supervisor) stopRun(r *run, timeout time.Duration, reason string) error {
	if timeout <= 0 {
		timeout = s.stopTimeout
	}

	s.mu.Lock()
	if s.current != r || !s.state.Active() {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateStopping {
		s.mu.Unlock()
		<-r.done
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.logger.Info("stopping worker",
		logging.String("reason", reason),
		logging.Int("pid", r.info.PID),
		logging.Duration("grace", timeout),
		logging.String(logging.FieldEventType, "worker_stopping"),
	)
	if err := terminateProcess(r.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.logger.Debug("terminate signal failed", logging.Error(err))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return nil
	case <-timer.C:
	}

	logging.WarnWithContext(r.logger, "worker ignored termination; killing", "worker_killed",
		logging.Int("pid", r.info.PID),
		logging.String(logging.FieldErrorHint, "the worker should exit promptly on SIGTERM"),
		logging.String(logging.FieldImpact, "in-flight document output may be incomplete"),
	)
	if err := killProcess(r.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker: %w", err)
	}
	select {
	case <-r.done:
		return nil
	case <-time.After(killWaitTimeout):
		return fmt.Errorf("worker %d did not exit after SIGKILL", r.info.PID)
	}
}

// Wait blocks until the current run ends and returns its summary.
func (s *Supervisor) Wait(ctx context.Context) (RunSummary, error) {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return RunSummary{}, ErrNoRun
	}
	select {
	case <-r.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return r.summary, nil
	case <-ctx.Done():
		return RunSummary{}, ctx.Err()
	}
}

// Done is closed when the current run ends. Before any run it is already
// closed.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.current.done
}

// Snapshot returns the current state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{State: s.state, ExitCode: s.exitCode}
	if s.current != nil {
		snap.PID = s.current.info.PID
		snap.RunID = s.current.info.RunID
		snap.StartedAt = s.current.info.StartedAt
	}
	return snap
}

func (s *Supervisor) record(fn func(ctx context.Context) error) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logging.WarnWithContext(s.logger, "run history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions"),
			logging.String(logging.FieldImpact, "this run will be missing from 'docintake history'"),
		)
	}
}

func exitMessage(code int, stopped bool) string {
	switch {
	case stopped && code < 0:
		return "worker stopped by operator"
	case code < 0:
		return "worker terminated by signal"
	case code == 0:
		return "worker exited successfully"
	default:
		return fmt.Sprintf("worker exited with code %d", code)
	}
}

// mergeEnv overlays extra on base, replacing existing keys. Output is
// sorted for stable process environments.
func mergeEnv(base []string, extra map[string]string) []string {
	merged := make(map[string]string, len(base)+len(extra))
	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	out := make([]string, 0, len(merged))
	for key, value := range merged {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}
