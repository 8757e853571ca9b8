package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docintake/internal/supervisor"
)

// Status summarises a run row.
type Status string

const (
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusStopped     Status = "stopped"
	StatusSpawnFailed Status = "spawn_failed"
	StatusAbandoned   Status = "abandoned"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run is one stored run.
type Run struct {
	RunID            string
	Command          string
	Args             []string
	PID              int
	StartedAt        time.Time
	FinishedAt       *time.Time
	ExitCode         *int
	Success          bool
	CompletionSource string
	Message          string
	Results          int
	Failures         int
	Stopped          bool
	SpawnError       string
}

// Status derives the display status.
func (r Run) Status() Status {
	switch {
	case r.SpawnError != "":
		return StatusSpawnFailed
	case r.FinishedAt == nil:
		return StatusRunning
	case r.CompletionSource == string(StatusAbandoned):
		return StatusAbandoned
	case r.Stopped:
		return StatusStopped
	case r.Success:
		return StatusSucceeded
	default:
		return StatusFailed
	}
}

// Duration is the wall time, or the time since start for a running row.
func (r Run) Duration(now time.Time) time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

var _ supervisor.RunRecorder = (*Store)(nil)

const runColumns = "run_id, command, args_json, pid, started_at, finished_at, exit_code, success, completion_source, message, results, failures, stopped, spawn_error"

// RecordStart inserts the row for a new run.
func (s *Store) RecordStart(ctx context.Context, info supervisor.RunInfo) error {
	args, err := json.Marshal(append([]string{}, info.Args...))
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO runs (run_id, command, args_json, pid, started_at) VALUES (?, ?, ?, ?, ?)`,
		info.RunID,
		info.Command,
		string(args),
		info.PID,
		formatTime(info.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", info.RunID, err)
	}
	return nil
}

// RecordFinish closes out a run row.
func (s *Store) RecordFinish(ctx context.Context, summary supervisor.RunSummary) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET
            pid = ?, finished_at = ?, exit_code = ?, success = ?, completion_source = ?,
            message = ?, results = ?, failures = ?, stopped = ?, spawn_error = ?
        WHERE run_id = ?`,
		summary.PID,
		formatTime(summary.FinishedAt),
		summary.ExitCode,
		boolToInt(summary.Completion.Success),
		nullableString(string(summary.Completion.Source)),
		nullableString(summary.Completion.Message),
		summary.Results,
		summary.Failures,
		boolToInt(summary.Stopped),
		nullableString(summary.SpawnError),
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", summary.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: %w", summary.RunID, ErrNotFound)
	}
	return nil
}

// MarkAbandoned closes rows left open by a supervisor that died mid-run.
// It must only be called while no run is active.
func (s *Store) MarkAbandoned(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET finished_at = ?, completion_source = ?, message = ?
        WHERE finished_at IS NULL`,
		formatTime(time.Now()),
		string(StatusAbandoned),
		"supervisor exited before the worker finished",
	)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned runs: %w", err)
	}
	return res.RowsAffected()
}

// List returns the most recent runs first. limit <= 0 returns all rows.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns a single run.
func (s *Store) Get(ctx context.Context, runID string) (Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// Prune deletes all but the newest keep rows.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE run_id NOT IN (
            SELECT run_id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
        )`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run         Run
		argsJSON    string
		startedRaw  string
		finishedRaw sql.NullString
		exitCode    sql.NullInt64
		success     int
		source      sql.NullString
		message     sql.NullString
		stopped     int
		spawnError  sql.NullString
	)
	if err := scanner.Scan(
		&run.RunID,
		&run.Command,
		&argsJSON,
		&run.PID,
		&startedRaw,
		&finishedRaw,
		&exitCode,
		&success,
		&source,
		&message,
		&run.Results,
		&run.Failures,
		&stopped,
		&spawnError,
	); err != nil {
		return Run{}, err
	}
	if argsJSON != "" {
		_ = json.Unmarshal([]byte(argsJSON), &run.Args)
	}
	if started, err := parseTime(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTime(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.Success = success != 0
	run.CompletionSource = source.String
	run.Message = message.String
	run.Stopped = stopped != 0
	run.SpawnError = spawnError.String
	return run, nil
}

// timeLayout is fixed-width so started_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
