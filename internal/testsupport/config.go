package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"docintake/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Directories are created so tree and checkpoint code can run immediately.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "source")
	cfgVal.Paths.ContentDir = filepath.Join(base, "processed")
	cfgVal.Paths.MetadataDir = filepath.Join(base, "metadata")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Checkpoint.Path = filepath.Join(base, "state", "checkpoint.json")
	cfgVal.Worker.Command = "/bin/true"
	cfgVal.Worker.Args = nil
	cfgVal.Worker.APIKey = "test"
	cfgVal.Worker.StopTimeoutSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithWorkerScript writes body as an executable shell script and configures
// it as the worker command.
func WithWorkerScript(body string) ConfigOption {
	return func(b *configBuilder) {
		target := filepath.Join(b.baseDir, "bin", "worker.sh")
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
			b.t.Fatalf("write worker script: %v", err)
		}
		b.cfg.Worker.Command = target
		b.cfg.Worker.Args = nil
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "stubs")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir stub dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ContentDir)
}
