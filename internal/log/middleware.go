package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext returns the request logger, or one backed by slog.Default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// StructuredLogger logs the recurring events of the HTTP and service layers
// with a consistent set of fields.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPEnd logs a completed request at a level matching its status.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()).
		WithHTTPResponse(statusCode, durationMs).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogRecordCreated logs a stored expense, income or settlement.
func (sl *StructuredLogger) LogRecordCreated(ctx context.Context, groupID, kind, recordID string, amount any) {
	fields := NewFields().
		WithRecord(groupID, kind, recordID).
		WithOperation(OpCreate).
		WithComponent(ComponentHousehold)
	fields[FieldAmount] = amount

	sl.logger.Logger.InfoContext(ctx, "Record created", fields.ToSlice()...)
}

// LogDuplicates logs that a candidate resembles existing records.
func (sl *StructuredLogger) LogDuplicates(ctx context.Context, groupID, kind string, matches int, topScore float64) {
	fields := NewFields().
		WithRecord(groupID, kind, "").
		WithOperation(OpCheck).
		WithComponent(ComponentHousehold)
	fields[FieldMatches] = matches
	fields[FieldTopScore] = topScore

	sl.logger.Logger.InfoContext(ctx, "Possible duplicates found", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err).WithOperation(operation).WithComponent(component)
	sl.logger.Logger.ErrorContext(ctx, msg, fields.ToSlice()...)
}
