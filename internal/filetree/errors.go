package filetree

import (
	"errors"
	"fmt"

	"docintake/internal/pathguard"
	"docintake/internal/textutil"
)

var (
	// ErrAlreadyExists reports a create or move whose target is already present.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound reports a missing source, parent, or listing target.
	ErrNotFound = errors.New("not found")
	// ErrInvalidDrop reports a folder dropped onto itself or its own subtree.
	ErrInvalidDrop = errors.New("cannot drop a folder into itself")
	// ErrInvalidMove reports a move of the root or of a folder beneath itself.
	ErrInvalidMove = errors.New("invalid move")
	// ErrNotDirectory reports a listing or drop target that is a file.
	ErrNotDirectory = errors.New("not a directory")
	// ErrNotEmpty reports a delete of a folder that still has entries.
	ErrNotEmpty = errors.New("directory not empty")
)

// OpError records the failed operation and the relative path involved.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op, path string, err error) error {
	return &OpError{Op: op, Path: path, Err: err}
}

// Result is the structured outcome handed to the CLI boundary.
type Result struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome converts an operation error into a Result.
func Outcome(err error) Result {
	if err == nil {
		return Result{Success: true, Code: "ok", Message: "ok"}
	}
	return Result{Code: errorCode(err), Message: err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, pathguard.ErrPathViolation):
		return "path_violation"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidDrop):
		return "invalid_drop"
	case errors.Is(err, ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, textutil.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrNotDirectory):
		return "not_directory"
	case errors.Is(err, ErrNotEmpty):
		return "not_empty"
	default:
		return "io_error"
	}
}
