package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	SourceDir   string `toml:"source_dir"`
	ContentDir  string `toml:"content_dir"`
	MetadataDir string `toml:"metadata_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Worker describes how the external classification worker is launched.
type Worker struct {
	Command             string            `toml:"command"`
	Args                []string          `toml:"args"`
	WorkingDir          string            `toml:"working_dir"`
	Env                 map[string]string `toml:"env"`
	APIKey              string            `toml:"api_key"`
	ClientName          string            `toml:"client_name"`
	StopTimeoutSeconds  int               `toml:"stop_timeout_seconds"`
	HeuristicCompletion bool              `toml:"heuristic_completion"`
	CompletionMarkers   []string          `toml:"completion_markers"`
}

// Checkpoint locates the resumable-progress file.
type Checkpoint struct {
	Path string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics controls the Prometheus endpoint exposed while a run is active.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for docintake.
//
// Configuration sections by subsystem:
//   - Paths: source documents, the classified content tree and its metadata mirror
//   - Worker: command line, environment and shutdown policy for the worker
//   - Checkpoint: resumable progress file
//   - Logging: log format, level, and retention
//   - Metrics: optional Prometheus listener
type Config struct {
	Paths      Paths      `toml:"paths"`
	Worker     Worker     `toml:"worker"`
	Checkpoint Checkpoint `toml:"checkpoint"`
	Logging    Logging    `toml:"logging"`
	Metrics    Metrics    `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docintake/config.toml")
}

// Load locates, parses, and validates a configuration file. It returns the
// normalized config, the path it looked at, and whether that file existed.
// Unknown keys are rejected so a misspelt setting does not silently fall back
// to its default.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file).DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// locate resolves an explicit path, or else prefers the user config over a
// docintake.toml in the working directory.
func locate(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		return expanded, exists, err
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("docintake.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates the directories the supervisor and tree manager need.
// SourceDir is created on a best-effort basis since it is usually managed by the
// operator (a synced folder or scanner drop box).
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ContentDir, c.Paths.MetadataDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.SourceDir) != "" {
		_ = os.MkdirAll(c.Paths.SourceDir, 0o755)
	}
	return nil
}

// HistoryPath returns the run history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// WorkerEnv returns the environment handed to the worker on top of the
// inherited process environment: the configured env table plus credential,
// client, checkpoint and directory values.
func (c *Config) WorkerEnv() map[string]string {
	env := make(map[string]string, len(c.Worker.Env)+6)
	for key, value := range c.Worker.Env {
		env[key] = value
	}
	if c.Worker.APIKey != "" {
		env["ANTHROPIC_API_KEY"] = c.Worker.APIKey
	}
	if c.Worker.ClientName != "" {
		env["CLIENT_NAME"] = c.Worker.ClientName
	}
	env["DOCINTAKE_CHECKPOINT"] = c.Checkpoint.Path
	env["DOCINTAKE_SOURCE_DIR"] = c.Paths.SourceDir
	env["DOCINTAKE_CONTENT_DIR"] = c.Paths.ContentDir
	env["DOCINTAKE_METADATA_DIR"] = c.Paths.MetadataDir
	return env
}

// WorkerEnvKeys returns the sorted keys of WorkerEnv, for display.
func (c *Config) WorkerEnvKeys() []string {
	env := c.WorkerEnv()
	return slices.Sorted(maps.Keys(env))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
