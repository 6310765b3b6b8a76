package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LogLevel читает LOG_LEVEL. Принимает имена slog (debug, info, warn, error)
// в любом регистре и смещения вида "info+2". Пустое или неверное значение даёт INFO.
func LogLevel() slog.Level {
	var level slog.Level
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return slog.LevelInfo
		}
	}
	return level
}

// NewLogger строит логгер поверх w. format "text" даёт человекочитаемый вывод,
// всё остальное пишет JSON.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetupLogger настраивает логгер процесса по LOG_FORMAT и LOG_LEVEL,
// помечает все записи именем сервиса и делает его логгером по умолчанию.
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stdout, os.Getenv("LOG_FORMAT"), LogLevel()).With("service", service)
	slog.SetDefault(logger)
	return logger
}

type loggerKey struct{}

// WithLogger кладёт логгер в контекст, чтобы loader и задачи писали с полями run/узла.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт логгер из контекста или возвращает slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

func WithRunID(logger *slog.Logger, runID int64) *slog.Logger {
	return logger.With("run_id", runID)
}

func WithTaskID(logger *slog.Logger, nodeID int64) *slog.Logger {
	return logger.With("pipeline_run_task_id", nodeID)
}

func WithJobID(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With("job_id", jobID)
}
