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

// SetGlobalLogger replaces the process-wide logger, e.g. with a quieter one in CLIs.
func SetGlobalLogger(l *slog.Logger) {
	GlobalLogger = &Logger{Logger: l}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// CorrelationID is the context key for the correlation ID.
const CorrelationID LogContextKey = "correlation_id"

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

// RepoLogger provides structured logging for repository operations.
type RepoLogger struct {
	tableName string
	logger    *Logger
}

// NewRepoLogger creates a new RepoLogger for the given table.
func NewRepoLogger(tableName string) *RepoLogger {
	return &RepoLogger{
		tableName: tableName,
		logger:    GlobalLogger,
	}
}

// LogWrite logs a repository mutation.
func (l *RepoLogger) LogWrite(ctx context.Context, operation string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("table", l.tableName),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.DebugContext(ctx, "repository write", attrs...)
}

// LogError logs a repository error.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string) {
	l.logger.ErrorContext(ctx, "repository error",
		slog.String("table", l.tableName),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
}

// SyncLogger provides structured logging for the client sync engine.
type SyncLogger struct {
	component string
	viewerID  uint
}

// NewSyncLogger creates a SyncLogger scoped to one component of one viewer's session.
func NewSyncLogger(component string, viewerID uint) *SyncLogger {
	return &SyncLogger{component: component, viewerID: viewerID}
}

func (l *SyncLogger) attrs(ctx context.Context, fields map[string]interface{}) []any {
	attrs := []any{
		slog.String("component", l.component),
		slog.Uint64("viewer_id", uint64(l.viewerID)),
	}
	if id := ExtractCorrelationID(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// Info logs a sync lifecycle event.
func (l *SyncLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	GlobalLogger.InfoContext(ctx, msg, l.attrs(ctx, fields)...)
}

// Debug logs a high-frequency sync event such as a poll tick.
func (l *SyncLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	GlobalLogger.DebugContext(ctx, msg, l.attrs(ctx, fields)...)
}

// Warn logs a recoverable sync failure.
func (l *SyncLogger) Warn(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	attrs := l.attrs(ctx, fields)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	GlobalLogger.WarnContext(ctx, msg, attrs...)
}
