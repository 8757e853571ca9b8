package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// scriptExtensions are entry points run through an interpreter command.
var scriptExtensions = map[string]struct{}{
	".py": {},
	".sh": {},
	".js": {},
	".rb": {},
}

// CheckWorkerScript reports the script an interpreter-style worker command
// will run, e.g. `python3 main.py`. The first argument with a script
// extension is resolved against dir the same way the child process will see
// it. When no argument looks like a script the check passes with no command.
func CheckWorkerScript(args []string, dir string) Status {
	result := Status{
		Name:        "Worker script",
		Description: "Entry point passed to the worker interpreter",
	}
	script := ""
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if _, ok := scriptExtensions[strings.ToLower(filepath.Ext(arg))]; ok {
			script = arg
			break
		}
	}
	if script == "" {
		result.Available = true
		result.Detail = "no script argument"
		return result
	}

	candidate := script
	if !filepath.IsAbs(candidate) && dir != "" {
		candidate = filepath.Join(dir, candidate)
	}
	result.Command = candidate
	info, err := os.Stat(candidate)
	if err != nil {
		result.Detail = fmt.Sprintf("script %q not found", candidate)
		return result
	}
	if info.IsDir() {
		result.Detail = fmt.Sprintf("script %q is a directory", candidate)
		return result
	}
	result.Available = true
	if abs, err := filepath.Abs(candidate); err == nil {
		result.Resolved = abs
	}
	return result
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// CheckExecutable reports whether path names an executable regular file.
// Relative commands without a separator are left to CheckBinaries.
func CheckExecutable(name, path string) Status {
	result := Status{Name: name, Command: path}
	info, err := os.Stat(path)
	if err != nil {
		result.Detail = fmt.Sprintf("%q not found", path)
		return result
	}
	if !isExecutable(info) {
		result.Detail = fmt.Sprintf("%q is not executable", path)
		return result
	}
	result.Available = true
	result.Resolved = path
	return result
}
