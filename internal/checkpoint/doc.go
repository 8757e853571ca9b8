// Package checkpoint persists the set of work items a worker has finished so
// an interrupted batch resumes where it stopped.
//
// The file is a JSON array of identifiers, the same format the worker reads.
// A missing or unreadable file means nothing has completed yet; it never
// fails a run. Writes go through a temp file and rename, and a sidecar lock
// file serializes writers across processes.
package checkpoint
