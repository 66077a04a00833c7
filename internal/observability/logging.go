// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
)

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id := ctx.Value(CorrelationID); id != nil {
		return id.(string)
	}
	return ""
}

// TransitionLogger provides structured logging for moderation state transitions.
type TransitionLogger struct {
	logger *Logger
}

// NewTransitionLogger creates a new TransitionLogger.
func NewTransitionLogger() *TransitionLogger {
	return &TransitionLogger{logger: GlobalLogger}
}

// LogAction logs one applied moderation action.
func (l *TransitionLogger) LogAction(ctx context.Context, requestID uint, action string, byUserID uint, fields map[string]interface{}) {
	attrs := []any{
		slog.Uint64("request_id", uint64(requestID)),
		slog.String("action", action),
		slog.Uint64("by_user_id", uint64(byUserID)),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "moderation action", attrs...)
}

// LogError logs a moderation transition error.
func (l *TransitionLogger) LogError(ctx context.Context, requestID uint, err error, operation string) {
	l.logger.ErrorContext(ctx, "moderation error",
		slog.Uint64("request_id", uint64(requestID)),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
}
