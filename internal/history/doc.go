// Package history persists one row per worker run in a SQLite database under
// the state directory.
//
// The supervisor writes through the Store's RecordStart/RecordFinish pair;
// the CLI reads the table back for `docintake history`. Runs that never got a
// finish record (the supervisor itself crashed) are reported as abandoned
// and can be closed out with MarkAbandoned.
package history
