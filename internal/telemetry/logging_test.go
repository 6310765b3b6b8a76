package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	WithTaskID(WithRunID(NewLogger(&buf, "json", slog.LevelInfo), 5), 17).Info("node scheduled")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json output: %v (%s)", err, buf.String())
	}
	if rec["run_id"] != float64(5) || rec["pipeline_run_task_id"] != float64(17) {
		t.Errorf("fields = %v", rec)
	}

	buf.Reset()
	logger := NewLogger(&buf, "text", slog.LevelWarn)
	logger.Info("dropped")
	WithJobID(logger, "abc").Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "job_id=abc") {
		t.Errorf("text output = %q", out)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger for empty context")
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if FromContext(WithLogger(context.Background(), logger)) != logger {
		t.Error("expected logger stored in context")
	}
}
