package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		level    string
		enabled  slog.Level
		disabled slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"warn level", "WARN", slog.LevelWarn, slog.LevelInfo},
		{"error level", "error", slog.LevelError, slog.LevelWarn},
		{"default info", "", slog.LevelInfo, slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger := New(tt.level, &bytes.Buffer{})
			if !logger.Enabled(ctx, tt.enabled) {
				t.Fatalf("expected level %s to be enabled", tt.enabled)
			}
			if logger.Enabled(ctx, tt.disabled) {
				t.Fatalf("expected level %s to be disabled", tt.disabled)
			}
		})
	}
}

func TestNewWritesJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New("info", &buf).Info("appointment scheduled", "appointment_id", "appt-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["appointment_id"] != "appt-1" {
		t.Fatalf("expected appointment_id attribute, got %v", entry)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != nil {
		t.Fatalf("expected no logger on empty context")
	}

	logger := New("debug", &bytes.Buffer{})
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatalf("expected logger to round trip through context")
	}

	if got := ContextWithLogger(ctx, nil); got != ctx {
		t.Fatalf("expected nil logger to leave context unchanged")
	}
}
