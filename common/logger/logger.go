package logger

import (
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with workflow-scoped helpers
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout
func New(level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a logger writing to w (tests pass a buffer)
func NewWithWriter(w io.Writer, level, format string) *Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		// Colored console output for local development
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithRunID stamps every entry with the run id
func (l *Logger) WithRunID(runID string) *Logger {
	return l.with("run_id", runID)
}

// WithNodeID stamps every entry with the node id
func (l *Logger) WithNodeID(nodeID string) *Logger {
	return l.with("node_id", nodeID)
}

// Error logs an error with a stack trace appended, so failures deep in
// a run task can be placed without a debugger
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append(args, "stack", string(debug.Stack()))...)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
