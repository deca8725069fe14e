package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

var (
	slogger *slog.Logger
	logFile *os.File
)

// InitSlog initializes the slog-based structured logger. If jsonOutput is
// true, logs are formatted as JSON (suited to a non-TTY/production target);
// otherwise a human-readable text handler is used. logDir may be empty to
// skip the file sink. Output always includes stderr, never stdout.
func InitSlog(logDir string, jsonOutput bool) error {
	var writer io.Writer = os.Stderr

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}

		logFileName := "mcp-hot-reload-" + time.Now().Format("2006-01-02") + ".log"
		logFilePath := filepath.Join(logDir, logFileName)

		var err error
		logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writer = io.MultiWriter(os.Stderr, logFile)
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	slogger = slog.New(handler)
	slog.SetDefault(slogger)

	return nil
}

// CloseSlog closes the slog log file, if one was opened.
func CloseSlog() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// Slog returns the slog.Logger instance for structured logging.
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}

// WithContext returns a logger enriched with the cycle/session identifiers
// carried on ctx, if any.
func WithContext(ctx context.Context) *slog.Logger {
	l := Slog()

	if cycleID := ctx.Value(ContextKeyCycleID); cycleID != nil {
		l = l.With("cycle_id", cycleID)
	}
	if pid := ctx.Value(ContextKeyChildPID); pid != nil {
		l = l.With("child_pid", pid)
	}

	return l
}

// Context keys for structured logging.
type contextKey string

const (
	// ContextKeyCycleID correlates the log lines emitted by one hot-reload cycle's restart step.
	ContextKeyCycleID contextKey = "cycle_id"
	// ContextKeyChildPID tags log lines with the pid of the child they concern.
	ContextKeyChildPID contextKey = "child_pid"
)

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// ErrorContext logs an error with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// WarnContext logs a warning with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// DebugContext logs debug info with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}
