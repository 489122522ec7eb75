package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogContext holds structured logging context for one build.
type LogContext struct {
	BuildID string
	Stage   string
	Phase   string
	Plugin  string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithBuildID adds a build ID to the context.
func WithBuildID(ctx context.Context, buildID string) context.Context {
	lc := extractLogContext(ctx)
	lc.BuildID = buildID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage adds a pipeline state name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

// WithPlugin adds the running plugin and its phase to the context.
func WithPlugin(ctx context.Context, phase, plugin string) context.Context {
	lc := extractLogContext(ctx)
	lc.Phase = phase
	lc.Plugin = plugin
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := make([]slog.Attr, 0, 4)
	if lc.BuildID != "" {
		attrs = append(attrs, slog.String("build_id", lc.BuildID))
	}
	if lc.Stage != "" {
		attrs = append(attrs, slog.String("stage", lc.Stage))
	}
	if lc.Phase != "" {
		attrs = append(attrs, slog.String("phase", lc.Phase))
	}
	if lc.Plugin != "" {
		attrs = append(attrs, slog.String("plugin", lc.Plugin))
	}
	return attrs
}

func logWithContext(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	all := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, level, msg, all...)
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logWithContext(ctx, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logWithContext(ctx, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logWithContext(ctx, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logWithContext(ctx, slog.LevelDebug, msg, attrs)
}

// ParseLevel maps a level name to a slog level. The verbose flag forces debug,
// and ASSETPIPE_LOG_LEVEL overrides the configured value.
func ParseLevel(configured string, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	raw := configured
	if env := os.Getenv("ASSETPIPE_LOG_LEVEL"); env != "" {
		raw = env
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// NewLogger builds a text or JSON slog logger writing to w.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
