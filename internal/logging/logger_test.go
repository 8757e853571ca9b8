package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docintake/internal/config"
	"docintake/internal/logging"
)

func TestNewFromConfigWritesJSONLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Level = "info"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "supervisor").Info("worker started", logging.Int("pid", 4242))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record); err != nil {
		t.Fatalf("log file line is not JSON: %v (%q)", err, data)
	}
	if record["msg"] != "worker started" || record["component"] != "supervisor" || record["level"] != "info" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key in %v", record)
	}
}

func TestConsoleLoggerFormatsComponentAndRunID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "console", "info")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRunID(context.Background(), "3f2a9c1e-0000-4000-8000-000000000000")
	log := logging.WithContext(ctx, logging.NewComponentLogger(logger, "supervisor"))
	log.Info("worker exited", logging.Int("exit_code", 1), logging.String("reason", "bad input"), logging.Duration("elapsed", 2*time.Second))
	log.Debug("hidden")

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("expected a single line, got %q", line)
	}
	for _, want := range []string{"INFO", "supervisor [3f2a9c1e]: worker exited", "exit_code=1", `reason="bad input"`, "elapsed=2s"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(io.Discard, "xml", "info"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "json", "debug")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "checkpoint unreadable", "checkpoint_corrupt", logging.String(logging.FieldImpact, "all documents will be reprocessed"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record[logging.FieldEventType] != "checkpoint_corrupt" {
		t.Fatalf("unexpected event_type %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error_hint")
	}
	if record[logging.FieldImpact] != "all documents will be reprocessed" {
		t.Fatalf("caller impact should be kept, got %v", record[logging.FieldImpact])
	}
}

func TestRetentionPrune(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "docintake-old.log")
	fresh := filepath.Join(dir, "docintake-new.log")
	keep := filepath.Join(dir, logging.LogFileName)
	for _, path := range []string{old, fresh, keep} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -40)
	for _, path := range []string{old, keep} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.Retention{Dir: dir, Days: 30, Patterns: []string{"docintake*.log"}, Keep: []string{keep}}.Prune(logging.NewNop())
	if removed != 1 {
		t.Fatalf("expected one file pruned, got %d", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{fresh, keep} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}
