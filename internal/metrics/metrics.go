// Package metrics provides Prometheus metrics for docintake runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker lifecycle
	workerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintake_worker_runs_total",
			Help: "Worker runs by outcome and completion source",
		},
		[]string{"outcome", "source"},
	)

	workerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docintake_worker_running",
			Help: "1 while a worker process is running",
		},
	)

	workerRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docintake_worker_run_duration_seconds",
			Help:    "Wall time of worker runs",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	workerSpawnFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docintake_worker_spawn_failures_total",
			Help: "Worker processes that could not be started",
		},
	)

	// Event stream
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintake_events_total",
			Help: "Parsed worker events by kind and stream",
		},
		[]string{"kind", "stream"},
	)

	resultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintake_results_total",
			Help: "Per-document results reported by the worker",
		},
		[]string{"success"},
	)

	// Status bus
	busSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docintake_bus_subscribers",
			Help: "Registered status bus subscribers",
		},
	)

	busHandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintake_bus_handler_failures_total",
			Help: "Subscriber handlers that returned an error or panicked",
		},
		[]string{"subscriber"},
	)

	// Checkpoint
	checkpointAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintake_checkpoint_appends_total",
			Help: "Checkpoint append attempts by status",
		},
		[]string{"status"},
	)

	// Content tree
	treeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintake_tree_operations_total",
			Help: "Content tree operations by operation and result code",
		},
		[]string{"op", "code"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRunStarted marks a worker as running.
func RecordRunStarted() {
	workerRunning.Set(1)
}

// RecordRunFinished records a finished run.
func RecordRunFinished(success bool, source string, duration time.Duration) {
	workerRunning.Set(0)
	outcome := "failure"
	if success {
		outcome = "success"
	}
	workerRunsTotal.WithLabelValues(outcome, source).Inc()
	workerRunDuration.Observe(duration.Seconds())
}

// RecordSpawnFailure counts a worker that never started.
func RecordSpawnFailure() {
	workerRunning.Set(0)
	workerSpawnFailures.Inc()
}

// RecordEvent counts a parsed event.
func RecordEvent(kind, stream string) {
	eventsTotal.WithLabelValues(kind, stream).Inc()
}

// RecordResult counts a per-document result.
func RecordResult(success bool) {
	resultsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// SetBusSubscribers sets the current subscriber count.
func SetBusSubscribers(count int) {
	busSubscribers.Set(float64(count))
}

// RecordHandlerFailure counts a failing subscriber.
func RecordHandlerFailure(subscriber string) {
	busHandlerFailures.WithLabelValues(subscriber).Inc()
}

// RecordCheckpointAppend counts a checkpoint write attempt.
func RecordCheckpointAppend(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	checkpointAppends.WithLabelValues(status).Inc()
}

// RecordTreeOperation counts a content tree operation by result code.
func RecordTreeOperation(op, code string) {
	treeOperations.WithLabelValues(op, code).Inc()
}
