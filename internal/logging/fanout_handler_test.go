package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestTeeHandlerCollapses(t *testing.T) {
	if _, ok := TeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := TeeHandler(nil, inner); h != inner {
		t.Fatal("expected single handler to be returned unwrapped")
	}
}

func TestTeeHandlerRoutesByLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := TeeHandler(infoHandler, debugHandler)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug enabled through the debug handler")
	}

	logger := slog.New(h).With(slog.String(FieldRunID, "abc")).WithGroup("worker")
	logger.Debug("stderr line", slog.String("line", "warming up"))

	if infoBuf.Len() != 0 {
		t.Fatalf("info handler received debug output: %s", infoBuf.String())
	}
	if !bytes.Contains(debugBuf.Bytes(), []byte(`"worker":{"line":"warming up"}`)) {
		t.Fatalf("expected grouped attr in debug output, got %s", debugBuf.String())
	}
	if !bytes.Contains(debugBuf.Bytes(), []byte(`"run_id":"abc"`)) {
		t.Fatalf("expected run id in debug output, got %s", debugBuf.String())
	}

	logger.Info("worker started")
	if !bytes.Contains(infoBuf.Bytes(), []byte("worker started")) || !bytes.Contains(debugBuf.Bytes(), []byte("worker started")) {
		t.Fatal("expected info record in both handlers")
	}
}

func TestJSONHandlerKeys(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	h, err := newJSONHandler(&buf, levelVar, false)
	if err != nil {
		t.Fatalf("newJSONHandler: %v", err)
	}
	slog.New(h).Warn("checkpoint append failed", slog.String("id", "a.pdf"))

	out := buf.String()
	for _, want := range []string{`"ts":"`, `"level":"warn"`, `"msg":"checkpoint append failed"`, `"id":"a.pdf"`} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}
