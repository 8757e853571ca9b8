package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"docintake/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckCheckpointFile verifies the checkpoint can be written. A missing file
// passes when its directory is writable; it is created by the first result.
func CheckCheckpointFile(path string) Result {
	const name = "Checkpoint"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "checkpoint.path not set"}
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	case err == nil:
		if accessErr := unix.Access(path, unix.R_OK|unix.W_OK); accessErr != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, accessErr)}
		}
		return Result{Name: name, Passed: true, Detail: path}
	case errors.Is(err, os.ErrNotExist):
		dir := filepath.Dir(path)
		if accessErr := unix.Access(dir, unix.W_OK|unix.X_OK); accessErr != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: directory not writable: %v)", dir, accessErr)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
}

// CheckCredentials reports the API key and client name handed to the worker.
// The client name is optional; the worker falls back to its own prompt.
func CheckCredentials(worker config.Worker) []Result {
	apiKey := Result{Name: "API key", Passed: true, Detail: "configured (" + maskSecret(worker.APIKey) + ")"}
	if strings.TrimSpace(worker.APIKey) == "" {
		apiKey = Result{Name: "API key", Detail: "missing (set worker.api_key or ANTHROPIC_API_KEY)"}
	}
	client := Result{Name: "Client name", Passed: true, Optional: true, Detail: worker.ClientName}
	if strings.TrimSpace(worker.ClientName) == "" {
		client = Result{Name: "Client name", Optional: true, Detail: "not set (set worker.client_name or CLIENT_NAME)"}
	}
	return []Result{apiKey, client}
}

func maskSecret(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "…" + value[len(value)-4:]
}
