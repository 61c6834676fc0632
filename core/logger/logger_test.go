package logger

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"log/slog"
)

func TestComponentLoggersCarryComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: formatKV,
	})

	prev := L
	L = slog.New(handler)
	wireComponents()
	t.Cleanup(func() {
		L = prev
		wireComponents()
	})

	LogEvent(Background(), FLOW, slog.LevelInfo, "claim.success",
		slog.Int64("user_id", 7),
	)
	LogEvent(Background(), SESS, slog.LevelDebug, "janitor.sweep",
		slog.Int("removed", 2),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "component=flow") || !strings.Contains(lines[0], "event=claim.success") {
		t.Fatalf("flow line missing component/event: %s", lines[0])
	}
	if !strings.Contains(lines[1], "component=sessions") || !strings.Contains(lines[1], "event=janitor.sweep") {
		t.Fatalf("sessions line missing component/event: %s", lines[1])
	}
}
