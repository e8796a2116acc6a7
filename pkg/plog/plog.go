package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// levelVar holds the global minimum log level. It is shared by all handlers
// so that SetLevel takes effect even after SetOutput replaced the logger.
var levelVar = new(slog.LevelVar)

var defaultLogger *slog.Logger

func init() {
	defaultLogger = newConsoleLogger(nil)
}

// newConsoleLogger builds the default logger: info-level records (and below)
// go to stdout, warnings and errors go to stderr. A non-nil tee additionally
// receives a copy of every record, regardless of its console stream.
func newConsoleLogger(tee io.Writer) *slog.Logger {
	stdout := io.Writer(os.Stdout)
	stderr := io.Writer(os.Stderr)
	if tee != nil {
		stdout = io.MultiWriter(os.Stdout, tee)
		stderr = io.MultiWriter(os.Stderr, tee)
	}
	stdoutHandler := slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level: levelVar,
	})
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: levelVar,
	})
	return slog.New(&LevelDispatchHandler{
		stdoutHandler: stdoutHandler,
		stderrHandler: stderrHandler,
	})
}

// SetOutput redirects all log output to a single writer. Used by tests that
// capture log output.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: levelVar,
	}))
}

// SetFileOutput copies every record to the given writer while keeping the
// stdout/stderr level dispatch intact. Used for the -log run log.
func SetFileOutput(w io.Writer) {
	defaultLogger = newConsoleLogger(w)
}

// ResetOutput restores the default stdout/stderr dispatch logger.
func ResetOutput() {
	defaultLogger = newConsoleLogger(nil)
}

// SetLevel sets the global minimum log level.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// LevelFromString maps a level name to a slog.Level. Unknown names fall back
// to info so a typo in a config file never silences the log entirely.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
