package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ContentDir == "" {
		return errors.New("paths.content_dir must be set")
	}
	if c.Paths.MetadataDir == "" {
		return errors.New("paths.metadata_dir must be set")
	}
	if c.Paths.ContentDir == c.Paths.MetadataDir {
		return errors.New("paths.metadata_dir must differ from paths.content_dir")
	}
	if within(c.Paths.MetadataDir, c.Paths.ContentDir) || within(c.Paths.ContentDir, c.Paths.MetadataDir) {
		return errors.New("paths.content_dir and paths.metadata_dir must not be nested inside each other")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.Command == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/docintake/config.toml"
		}
		return fmt.Errorf("worker.command is required. Edit %s (create with 'docintake config init')", defaultPath)
	}
	if c.Worker.StopTimeoutSeconds <= 0 {
		return errors.New("worker.stop_timeout_seconds must be positive")
	}
	if c.Worker.HeuristicCompletion && len(c.Worker.CompletionMarkers) == 0 {
		return errors.New("worker.completion_markers must include at least one phrase when worker.heuristic_completion is true")
	}
	for key := range c.Worker.Env {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "=\x00") {
			return fmt.Errorf("worker.env: invalid variable name %q", key)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Bind); err != nil {
		return fmt.Errorf("metrics.bind: %w", err)
	}
	return nil
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
