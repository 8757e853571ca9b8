package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docintake/internal/logs"
)

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docintake.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	tests := []struct {
		limit int
		want  string
	}{
		{limit: 2, want: "b,c"},
		{limit: 5, want: "a,b,c"},
		{limit: 0, want: ""},
	}
	for _, tt := range tests {
		result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: tt.limit})
		if err != nil {
			t.Fatalf("tail returned error: %v", err)
		}
		if got := strings.Join(result.Lines, ","); got != tt.want {
			t.Fatalf("limit %d: got %q want %q", tt.limit, got, tt.want)
		}
		if result.Offset != 6 {
			t.Fatalf("limit %d: offset = %d", tt.limit, result.Offset)
		}
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Offset: -1, Limit: 10})
	if err != nil || len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result %+v, %v", result, err)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docintake.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	done := make(chan logs.TailResult, 1)
	go func(offset int64) {
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		done <- res
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case res := <-done:
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Fatalf("unexpected follow lines: %#v", res.Lines)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

func TestFilter(t *testing.T) {
	lines := []string{
		`{"ts":"2026-01-01T00:00:00Z","level":"INFO","msg":"worker started","component":"supervisor","run_id":"0a1b2c3d-1111"}`,
		`{"ts":"2026-01-01T00:00:01Z","level":"DEBUG","msg":"worker output","component":"supervisor","run_id":"0a1b2c3d-1111"}`,
		`{"ts":"2026-01-01T00:00:02Z","level":"WARN","msg":"checkpoint append failed","component":"supervisor","run_id":"ffff0000-2222"}`,
		`plain text`,
	}

	tests := []struct {
		name   string
		filter logs.Filter
		want   int
	}{
		{"empty", logs.Filter{}, 4},
		{"run prefix", logs.Filter{RunID: "0a1b2c3d"}, 2},
		{"min level", logs.Filter{MinLevel: "info"}, 2},
		{"component", logs.Filter{Component: "runner"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.filter.Apply(lines)); got != tt.want {
				t.Fatalf("matched %d lines, want %d", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	got := logs.Format(`{"ts":"2026-01-01T00:00:00Z","level":"INFO","msg":"worker exited","component":"supervisor","exit_code":0}`)
	want := "2026-01-01T00:00:00Z INFO  supervisor: worker exited exit_code=0"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
	if logs.Format("not json") != "not json" {
		t.Fatal("non-JSON lines should pass through")
	}
}
