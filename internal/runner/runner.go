package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"docintake/internal/checkpoint"
	"docintake/internal/config"
	"docintake/internal/history"
	"docintake/internal/logging"
	"docintake/internal/metrics"
	"docintake/internal/statusbus"
	"docintake/internal/supervisor"
)

// LockFileName guards against two supervisors sharing a checkpoint.
const LockFileName = "docintake.lock"

// ErrAlreadyRunning is returned when another process holds the run lock.
var ErrAlreadyRunning = errors.New("another docintake run is already active")

// Runner owns the resources of a single run.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	lockPath   string
	lock       *flock.Flock
	checkpoint *checkpoint.Store
	history    *history.Store
	bus        *statusbus.Bus
	supervisor *supervisor.Supervisor
}

// New opens the checkpoint and history stores for cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("runner requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	cp, err := checkpoint.New(cfg.Checkpoint.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	hist, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}

	bus := statusbus.New(logger)
	lockPath := filepath.Join(cfg.Paths.StateDir, LockFileName)
	return &Runner{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "runner"),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		checkpoint: cp,
		history:    hist,
		bus:        bus,
		supervisor: supervisor.New(supervisor.Options{
			Bus:         bus,
			Checkpoint:  cp,
			Recorder:    hist,
			Logger:      logger,
			Heuristic:   cfg.Worker.HeuristicCompletion,
			Markers:     cfg.Worker.CompletionMarkers,
			StopTimeout: time.Duration(cfg.Worker.StopTimeoutSeconds) * time.Second,
		}),
	}, nil
}

// Bus returns the status bus so callers can attach renderers before Run.
func (r *Runner) Bus() *statusbus.Bus {
	return r.bus
}

// Supervisor exposes the underlying supervisor for status queries.
func (r *Runner) Supervisor() *supervisor.Supervisor {
	return r.supervisor
}

// Checkpoint returns the checkpoint store.
func (r *Runner) Checkpoint() *checkpoint.Store {
	return r.checkpoint
}

// Command builds the worker invocation from config.
func (r *Runner) Command() supervisor.Command {
	return supervisor.Command{
		Path: r.cfg.Worker.Command,
		Args: append([]string(nil), r.cfg.Worker.Args...),
		Env:  r.cfg.WorkerEnv(),
		Dir:  r.cfg.Worker.WorkingDir,
	}
}

// Run executes the worker once and blocks until it exits. Cancelling ctx
// stops the worker gracefully; Run still waits for it to go away.
func (r *Runner) Run(ctx context.Context) (supervisor.RunSummary, error) {
	ok, err := r.lock.TryLock()
	if err != nil {
		return supervisor.RunSummary{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return supervisor.RunSummary{}, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, r.lockPath)
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	if n, err := r.history.MarkAbandoned(ctx); err != nil {
		r.logger.Warn("close abandoned runs", logging.Error(err))
	} else if n > 0 {
		logging.WarnWithContext(r.logger, "previous runs ended without a finish record", "runs_abandoned",
			logging.Int64("count", n),
			logging.String(logging.FieldErrorHint, "a previous docintake process was killed; its documents resume from the checkpoint"),
		)
	}

	archivePath := filepath.Join(r.cfg.Paths.LogDir, "run-"+time.Now().UTC().Format("20060102T150405.000Z")+".events")
	logging.Retention{
		Dir:      r.cfg.Paths.LogDir,
		Days:     r.cfg.Logging.RetentionDays,
		Patterns: []string{"run-*.events", "*.log.*"},
		Keep:     []string{archivePath},
	}.Prune(r.logger)
	archive, err := OpenArchive(archivePath)
	if err != nil {
		logging.WarnWithContext(r.logger, "event archive unavailable", "archive_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "worker events for this run are only in the main log"),
		)
	} else {
		sub := r.bus.Subscribe("archive", archive.Write)
		defer func() {
			sub.Unsubscribe()
			if err := archive.Close(); err != nil {
				r.logger.Warn("close event archive", logging.Error(err))
			}
		}()
	}

	if stop := r.serveMetrics(); stop != nil {
		defer stop()
	}

	if _, err := r.supervisor.Start(ctx, r.Command()); err != nil {
		summary, _ := r.supervisor.Wait(context.Background())
		return summary, err
	}
	return r.supervisor.Wait(context.Background())
}

// serveMetrics starts the Prometheus listener when metrics.bind is set and
// returns its shutdown function.
func (r *Runner) serveMetrics() func() {
	if r.cfg.Metrics.Bind == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              r.cfg.Metrics.Bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WarnWithContext(r.logger, "metrics listener failed", "metrics_listen_failed",
				logging.String("bind", r.cfg.Metrics.Bind),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.bind"),
			)
		}
	}()
	r.logger.Info("serving metrics", logging.String("bind", r.cfg.Metrics.Bind))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// Close releases the history database.
func (r *Runner) Close() error {
	r.bus.UnsubscribeAll()
	return r.history.Close()
}
