package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestRecordersAppearInScrape(t *testing.T) {
	RecordRunStarted()
	if !strings.Contains(scrape(t), "docintake_worker_running 1") {
		t.Fatal("expected worker_running gauge set")
	}
	RecordRunFinished(false, "synthetic", 3*time.Second)
	RecordSpawnFailure()
	RecordEvent("progress", "stdout")
	RecordResult(true)
	RecordHandlerFailure("renderer")
	SetBusSubscribers(2)
	RecordCheckpointAppend(nil)
	RecordCheckpointAppend(errors.New("disk full"))
	RecordTreeOperation("move", "already_exists")

	body := scrape(t)
	for _, want := range []string{
		"docintake_worker_running 0",
		`docintake_worker_runs_total{outcome="failure",source="synthetic"}`,
		"docintake_worker_spawn_failures_total",
		`docintake_events_total{kind="progress",stream="stdout"}`,
		`docintake_results_total{success="true"}`,
		`docintake_bus_handler_failures_total{subscriber="renderer"}`,
		"docintake_bus_subscribers 2",
		`docintake_checkpoint_appends_total{status="error"}`,
		`docintake_tree_operations_total{code="already_exists",op="move"}`,
		"docintake_worker_run_duration_seconds_count",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}
