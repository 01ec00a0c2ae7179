// Package logger wraps log/slog with JSON/text output, level parsing, and
// masking of sensitive attributes. Scanned identifiers are PII in this
// product, so identifier values are redacted alongside credentials.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New creates a Logger.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: maskAttr,
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewDefault creates a JSON info-level logger on stdout.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "json"})
}

// NewDevelopment creates a text debug-level logger on stdout.
func NewDevelopment() *Logger {
	return New(Config{Level: "debug", Format: "text"})
}

// NewNop creates a logger that discards all output. Used in tests.
func NewNop() *Logger {
	return New(Config{Level: "error", Format: "json", Output: io.Discard})
}

// sensitiveKeys are attribute keys whose values never reach log output.
// Provider credentials and scanned identifiers (user PII) both qualify.
var sensitiveKeys = map[string]bool{
	"password":         true,
	"secret":           true,
	"token":            true,
	"api_key":          true,
	"apikey":           true,
	"credential":       true,
	"credentials":      true,
	"authorization":    true,
	"dsn":              true,
	"redis_password":   true,
	"identifier_value": true,
	"email":            true,
	"phone":            true,
}

func maskAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if sensitiveKeys[key] {
		return slog.String(a.Key, "[REDACTED]")
	}
	for s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// With returns a Logger with the given attributes attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithError returns a Logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.Any("error", err))}
}

// SetDefault installs this logger as the process-wide slog default.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

type contextKey string

const loggerKey contextKey = "logger"

// ToContext stores the logger in the context.
func ToContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves the logger from the context, falling back to the
// default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return NewDefault()
}

// ContextKey is the type for request-scoped attribute keys shared with the
// HTTP middleware.
type ContextKey string

// Request-scoped context keys.
const (
	ContextKeyRequestID   ContextKey = "request_id"
	ContextKeyWorkspaceID ContextKey = "workspace_id"
)
