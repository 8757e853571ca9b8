package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	if err := c.normalizeCheckpoint(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.SourceDir) != "" {
		if c.Paths.SourceDir, err = expandPath(c.Paths.SourceDir); err != nil {
			return fmt.Errorf("paths.source_dir: %w", err)
		}
	}
	if c.Paths.ContentDir, err = expandPath(c.Paths.ContentDir); err != nil {
		return fmt.Errorf("paths.content_dir: %w", err)
	}
	if c.Paths.MetadataDir, err = expandPath(c.Paths.MetadataDir); err != nil {
		return fmt.Errorf("paths.metadata_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorker() error {
	c.Worker.Command = strings.TrimSpace(c.Worker.Command)
	if strings.TrimSpace(c.Worker.WorkingDir) != "" {
		dir, err := expandPath(c.Worker.WorkingDir)
		if err != nil {
			return fmt.Errorf("worker.working_dir: %w", err)
		}
		c.Worker.WorkingDir = dir
	}
	c.Worker.APIKey = strings.TrimSpace(c.Worker.APIKey)
	if c.Worker.APIKey == "" {
		if value, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
			c.Worker.APIKey = strings.TrimSpace(value)
		}
	}
	c.Worker.ClientName = strings.TrimSpace(c.Worker.ClientName)
	if c.Worker.ClientName == "" {
		if value, ok := os.LookupEnv("CLIENT_NAME"); ok {
			c.Worker.ClientName = strings.TrimSpace(value)
		}
	}
	if c.Worker.StopTimeoutSeconds <= 0 {
		c.Worker.StopTimeoutSeconds = defaultStopTimeoutSeconds
	}

	markers := make([]string, 0, len(c.Worker.CompletionMarkers))
	seen := make(map[string]struct{}, len(c.Worker.CompletionMarkers))
	for _, marker := range c.Worker.CompletionMarkers {
		normalized := strings.ToLower(strings.TrimSpace(marker))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		markers = append(markers, normalized)
	}
	if len(markers) == 0 && c.Worker.HeuristicCompletion {
		markers = []string{DefaultCompletionMarker}
	}
	c.Worker.CompletionMarkers = markers
	return nil
}

func (c *Config) normalizeCheckpoint() error {
	if strings.TrimSpace(c.Checkpoint.Path) == "" {
		c.Checkpoint.Path = filepath.Join(c.Paths.StateDir, defaultCheckpointFile)
	}
	path, err := expandPath(c.Checkpoint.Path)
	if err != nil {
		return fmt.Errorf("checkpoint.path: %w", err)
	}
	c.Checkpoint.Path = path
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
