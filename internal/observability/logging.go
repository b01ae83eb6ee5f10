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

// CorrelationID is the context key carrying the correlation id of a request or job.
const CorrelationID LogContextKey = "correlation_id"

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableStoreLogging bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableStoreLogging: true,
}

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
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// StoreLogger provides structured logging for document store operations.
type StoreLogger struct {
	store  string
	logger *Logger
}

// NewStoreLogger creates a StoreLogger tagging every record with store.
func NewStoreLogger(store string) *StoreLogger {
	return &StoreLogger{
		store:  store,
		logger: GlobalLogger,
	}
}

func (l *StoreLogger) attrs(ctx context.Context, operation, path string) []any {
	return []any{
		slog.String("store", l.store),
		slog.String("operation", operation),
		slog.String("path", path),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
}

// LogWrite logs a successful conditional write.
func (l *StoreLogger) LogWrite(ctx context.Context, path, revision string, attempt int) {
	if !Config.EnableStoreLogging {
		return
	}
	attrs := append(l.attrs(ctx, "write", path),
		slog.String("revision", revision),
		slog.Int("attempt", attempt),
	)
	l.logger.InfoContext(ctx, "document written", attrs...)
}

// LogDelete logs a document removal.
func (l *StoreLogger) LogDelete(ctx context.Context, path string) {
	if !Config.EnableStoreLogging {
		return
	}
	l.logger.InfoContext(ctx, "document deleted", l.attrs(ctx, "delete", path)...)
}

// LogConflict logs a precondition mismatch that will be retried.
func (l *StoreLogger) LogConflict(ctx context.Context, path string, attempt int) {
	if !Config.EnableStoreLogging {
		return
	}
	attrs := append(l.attrs(ctx, "write", path), slog.Int("attempt", attempt))
	l.logger.WarnContext(ctx, "revision conflict", attrs...)
}

// LogError logs a failed store operation.
func (l *StoreLogger) LogError(ctx context.Context, err error, operation, path string) {
	if !Config.EnableStoreLogging {
		return
	}
	attrs := append(l.attrs(ctx, operation, path), slog.String("error", err.Error()))
	l.logger.ErrorContext(ctx, "store error", attrs...)
}

// LogBestEffortFailure records a secondary write whose failure does not fail the request.
func LogBestEffortFailure(ctx context.Context, operation string, err error, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.WarnContext(ctx, "best-effort update failed", attrs...)
}

// LogAsyncOperationStart logs the start of an asynchronous operation.
func LogAsyncOperationStart(ctx context.Context, operation string, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_start"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "async operation started", attrs...)
}

// LogAsyncOperationEnd logs the completion of an asynchronous operation.
func LogAsyncOperationEnd(ctx context.Context, operation string, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_end"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "async operation completed", attrs...)
}

// LogAsyncOperationError logs an error in an asynchronous operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
