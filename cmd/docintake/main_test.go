package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"docintake/internal/config"
	"docintake/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLITreeCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	content := env.cfg.Paths.ContentDir
	testsupport.WriteText(t, filepath.Join(content, "invoice.pdf"), "%PDF")
	testsupport.WriteText(t, filepath.Join(env.cfg.Paths.MetadataDir, "Invoices", "old.json"), "{}")
	testsupport.WriteText(t, filepath.Join(content, "Invoices", "old.pdf"), "%PDF")

	if _, _, err := runCLI(t, []string{"tree", "mkdir", ".", "Receipts"}, env.configPath); err != nil {
		t.Fatalf("tree mkdir: %v", err)
	}
	if _, _, err := runCLI(t, []string{"tree", "drop", "invoice.pdf", "Receipts"}, env.configPath); err != nil {
		t.Fatalf("tree drop: %v", err)
	}
	if _, err := os.Stat(filepath.Join(content, "Receipts", "invoice.pdf")); err != nil {
		t.Fatalf("expected dropped file: %v", err)
	}

	out, _, err := runCLI(t, []string{"tree", "ls", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("tree ls: %v", err)
	}
	var listing struct {
		Dirs  []string
		Files []string
	}
	if err := json.Unmarshal([]byte(out), &listing); err != nil {
		t.Fatalf("decode listing %q: %v", out, err)
	}
	if strings.Join(listing.Dirs, ",") != "Invoices,Receipts" || len(listing.Files) != 0 {
		t.Fatalf("unexpected listing %+v", listing)
	}

	out, _, err = runCLI(t, []string{"tree", "rm", "Invoices/old.pdf"}, env.configPath)
	if err != nil {
		t.Fatalf("tree rm: %v", err)
	}
	if !strings.Contains(out, "and its metadata") {
		t.Fatalf("expected sidecar removal message, got %q", out)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.MetadataDir, "Invoices", "old.json")); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar removed, stat err %v", err)
	}

	out, _, err = runCLI(t, []string{"tree", "mv", "--json", "Receipts", "../escaped"}, env.configPath)
	if err == nil {
		t.Fatal("expected escape to fail")
	}
	var result struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result %q: %v", out, err)
	}
	if result.Success || result.Code != "path_violation" {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(filepath.Join(env.baseDir, "escaped")); !os.IsNotExist(err) {
		t.Fatal("nothing may be created outside the content root")
	}
}

func TestCLICheckpointCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"checkpoint", "add", "a.pdf", "b.pdf", "a.pdf"}, env.configPath); err != nil {
		t.Fatalf("checkpoint add: %v", err)
	}
	out, _, err := runCLI(t, []string{"checkpoint", "show", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("checkpoint show: %v", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(out), &ids); err != nil {
		t.Fatalf("decode ids: %v", err)
	}
	if strings.Join(ids, ",") != "a.pdf,b.pdf" {
		t.Fatalf("unexpected ids %v", ids)
	}

	if _, _, err := runCLI(t, []string{"checkpoint", "reset"}, env.configPath); err == nil {
		t.Fatal("reset without --yes should fail")
	}
	out, _, err = runCLI(t, []string{"checkpoint", "reset", "--yes"}, env.configPath)
	if err != nil {
		t.Fatalf("checkpoint reset: %v", err)
	}
	if !strings.Contains(out, "Cleared 2") {
		t.Fatalf("unexpected reset output %q", out)
	}
}

func TestCLIPending(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.SourceDir, name), 64)
	}
	if _, _, err := runCLI(t, []string{"checkpoint", "add", "a.pdf"}, env.configPath); err != nil {
		t.Fatalf("checkpoint add: %v", err)
	}
	out, _, err := runCLI(t, []string{"pending"}, env.configPath)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !strings.Contains(out, "1 of 2 documents pending") || !strings.Contains(out, "b.pdf") || strings.Contains(out, "  a.pdf") {
		t.Fatalf("unexpected pending output %q", out)
	}
}

func TestCLIRunSuccess(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithWorkerScript(`echo '{"type":"progress","current":1,"total":1,"item":"a.pdf"}'
echo '{"type":"result","id":"a.pdf","success":true,"output":"Invoices/a.pdf"}'
echo '{"type":"complete","success":true,"message":"1 processed"}'
`))

	out, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v (output %q)", err, out)
	}
	for _, want := range []string{"[1/1] a.pdf", "ok   a.pdf -> Invoices/a.pdf", "Outcome:", "succeeded", "1 processed, 0 failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("run output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, `"Results": 1`) {
		t.Fatalf("unexpected history output %q", out)
	}
}

func TestCLIRunFailureExitCode(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithWorkerScript("echo boom >&2\nexit 4\n"))

	_, _, err := runCLI(t, []string{"run", "--json"}, env.configPath)
	if err == nil {
		t.Fatal("expected failing run to return an error")
	}
	var coded *exitError
	if !errors.As(err, &coded) || coded.code != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
	if exitCode(err) != 2 {
		t.Fatalf("exitCode = %d", exitCode(err))
	}
}

func TestCLICheckReportsMissingWorker(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Worker.Command = filepath.Join(env.baseDir, "no-worker")
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err == nil {
		t.Fatal("expected check to fail")
	}
	if !strings.Contains(out, "Worker command") || !strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected check output %q", out)
	}

	if _, _, err := runCLI(t, []string{"run"}, env.configPath); err == nil || !strings.Contains(err.Error(), "preflight failed") {
		t.Fatalf("expected run to stop at preflight, got %v", err)
	}
}

func TestCLIConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "docintake", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected output %q", out)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestCLILogsFiltersByRun(t *testing.T) {
	env := setupCLITestEnv(t)
	records := strings.Join([]string{
		`{"ts":"2026-01-01T00:00:00Z","level":"INFO","msg":"worker started","component":"supervisor","run_id":"aaaa1111"}`,
		`{"ts":"2026-01-01T00:00:01Z","level":"INFO","msg":"worker started","component":"supervisor","run_id":"bbbb2222"}`,
	}, "\n") + "\n"
	testsupport.WriteText(t, filepath.Join(env.cfg.Paths.LogDir, "docintake.log"), records)

	stdout, _, err := runCLI(t, []string{"logs", "--run", "bbbb"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(stdout, "aaaa1111") || !strings.Contains(stdout, "run_id=bbbb2222") {
		t.Fatalf("unexpected logs output:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, []string{"logs", "--raw", "-n", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --raw: %v", err)
	}
	if strings.TrimSpace(stdout) != strings.Split(records, "\n")[1] {
		t.Fatalf("expected last raw record, got %q", stdout)
	}
}
