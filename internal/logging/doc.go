// Package logging assembles structured slog loggers and formatting helpers used
// across docintake.
//
// It owns the console and JSON handlers, tees CLI output into the persistent
// JSON log under paths.log_dir, and exposes helpers that tag lines with the
// component name and worker run id. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
