// Package runner wires one `docintake run` together: it takes the
// single-instance lock under the state directory, opens the checkpoint and
// run history, archives bus events to a per-run file, optionally serves
// Prometheus metrics, and drives the supervisor until the worker exits or the
// caller's context is cancelled.
package runner
