package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerRendersComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("gallery queued",
		String(FieldComponent, "queue"),
		String(FieldGallery, "/pics/trip"),
		Int("total", 12),
	)

	line := buf.String()
	if !strings.Contains(line, "[queue]") {
		t.Fatalf("expected component tag in output, got %q", line)
	}
	if !strings.Contains(line, "gallery=/pics/trip") {
		t.Fatalf("expected gallery field in output, got %q", line)
	}
	if !strings.Contains(line, "total=12") {
		t.Fatalf("expected total field in output, got %q", line)
	}
}

func TestConsoleHandlerQuotesSpacedValues(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Warn("scan failed", String("reason", "no images found"))

	if !strings.Contains(buf.String(), `reason="no images found"`) {
		t.Fatalf("expected quoted reason, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should not enable error level")
	}
}
