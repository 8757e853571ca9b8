// Package logs reads back the JSON log file written under paths.log_dir.
//
// Tail returns the last N lines or everything after a byte offset, and can
// poll for new lines in follow mode. Filter narrows JSON records by run id,
// component, and minimum level without decoding whole records.
package logs
