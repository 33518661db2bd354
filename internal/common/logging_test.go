package common

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", false)
	logger.Info("enrich.start")
	logger.Warn("ocr.mistral.unrecognized_response", "document", "a.pdf")

	out := buf.String()
	if strings.Contains(out, "enrich.start") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "document=a.pdf") || strings.Contains(out, "time=") {
		t.Fatalf("unexpected output: %q", out)
	}
}
