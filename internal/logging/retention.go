package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Retention prunes aged files from a single log directory. Files are
// candidates when their base name matches any of Patterns; paths listed in
// Keep are never removed.
type Retention struct {
	Dir      string
	Days     int
	Patterns []string
	Keep     []string
}

// Prune removes candidates older than Days and returns how many were removed.
// Days <= 0 disables pruning. Removal failures are logged and skipped.
func (r Retention) Prune(logger *slog.Logger) int {
	if r.Days <= 0 || r.Dir == "" {
		return 0
	}
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -r.Days)
	keep := make(map[string]bool, len(r.Keep))
	for _, path := range r.Keep {
		keep[filepath.Clean(path)] = true
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !r.matches(entry.Name()) {
			continue
		}
		path := filepath.Join(r.Dir, entry.Name())
		if keep[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check ownership of paths.log_dir"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Info("old log files pruned",
			String("dir", r.Dir),
			Int("removed", removed),
			Int("retention_days", r.Days),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}

func (r Retention) matches(name string) bool {
	for _, pattern := range r.Patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
