package runner_test

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"docintake/internal/events"
	"docintake/internal/history"
	"docintake/internal/logging"
	"docintake/internal/runner"
	"docintake/internal/testsupport"
)

const resumableWorker = `for f in a.pdf b.pdf; do
  if grep -q "\"$f\"" "$DOCINTAKE_CHECKPOINT" 2>/dev/null; then
    echo "skip $f"
    continue
  fi
  echo "{\"type\":\"result\",\"id\":\"$f\",\"success\":true}"
done
echo "Processing complete!"
`

func TestRunCheckpointsAndRecordsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerScript(resumableWorker))
	r, err := runner.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Completion.Success || summary.Completion.Source != events.SourceHeuristic {
		t.Fatalf("unexpected completion %+v", summary.Completion)
	}
	if got := strings.Join(r.Checkpoint().Load(), ","); got != "a.pdf,b.pdf" {
		t.Fatalf("checkpoint = %q", got)
	}

	// The second run sees the checkpoint through the environment and skips
	// everything.
	summary, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Results != 0 {
		t.Fatalf("expected no new results on resume, got %d", summary.Results)
	}

	store := testsupport.MustOpenHistory(t, cfg)
	runs, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].Status() != history.StatusSucceeded {
		t.Fatalf("unexpected history %+v", runs)
	}

	archives, _ := filepath.Glob(filepath.Join(cfg.Paths.LogDir, "run-*.events"))
	if len(archives) == 0 {
		t.Fatal("expected an event archive")
	}
	f, err := os.Open(archives[0])
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines == 0 {
		t.Fatal("event archive is empty")
	}
}

func TestRunRefusesWhenLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerScript("exit 0\n"))
	held := flock.New(filepath.Join(cfg.Paths.StateDir, runner.LockFileName))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("pre-lock failed: %v", err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	r, err := runner.New(cfg, nil)
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	if _, err := r.Run(context.Background()); !errors.Is(err, runner.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestRunCancellationStopsWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerScript("echo started\nexec sleep 30\n"))
	r, err := runner.New(cfg, nil)
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	r.Bus().Subscribe("cancel-on-start", func(ev events.Event) error {
		if ev.Kind == events.KindLog && ev.Message == "started" {
			cancel()
		}
		return nil
	})

	done := make(chan struct{})
	var stopped bool
	go func() {
		defer close(done)
		summary, _ := r.Run(ctx)
		stopped = summary.Stopped
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	if !stopped {
		t.Fatal("expected summary to report a stopped run")
	}
}

func TestRunSpawnFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Worker.Command = filepath.Join(testsupport.BaseDir(cfg), "missing-worker")
	r, err := runner.New(cfg, nil)
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	summary, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected spawn error")
	}
	if summary.SpawnError == "" {
		t.Fatalf("expected spawn error in summary, got %+v", summary)
	}
}
