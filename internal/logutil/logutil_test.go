package logutil

import (
	"log/slog"
	"testing"
)

func TestParseSlogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, c := range cases {
		got, err := parseSlogLevel(c.in)
		if err != nil {
			t.Fatalf("parseSlogLevel(%q) error = %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("parseSlogLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := parseSlogLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewLoggerFromConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := newLoggerFromConfig(loggerConfig{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := newLoggerFromConfig(loggerConfig{Format: "json", Level: "debug"}); err != nil {
		t.Fatalf("json format should be accepted: %v", err)
	}
}
