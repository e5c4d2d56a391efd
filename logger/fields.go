package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across the session
// core. Use these constants instead of raw strings.
const (
	// Identity and correlation
	FieldSessionID = "session_id"
	FieldRole      = "role" // "alfie" or "betty"
	FieldRequestID = "request_id"
	FieldTraceID   = "trace_id"

	// Protocol
	FieldChannel   = "channel" // "control" or "reconciliation"
	FieldMsgType   = "msg_type"
	FieldHandle    = "handle"
	FieldKind      = "kind" // resource kind tag
	FieldNamespace = "namespace"
	FieldSubspace  = "subspace"
	FieldRange     = "range"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts and sizes
	FieldCount      = "count"
	FieldSize       = "size"
	FieldTotalCount = "total_count"

	// Network
	FieldAddress = "address"
	FieldPort    = "port"
)

type contextKey string

const (
	sessionIDKey contextKey = "logger_session_id"
	requestIDKey contextKey = "logger_request_id"
	traceIDKey   contextKey = "logger_trace_id"
)

// WithSessionID adds a session ID to the context for logging.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithRequestID adds a request ID to the context for logging.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithTraceID adds a trace ID to the context for logging.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// FieldsFromContext extracts logging fields from context.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		fields = append(fields, FieldSessionID, v)
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, FieldRequestID, v)
	}
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		fields = append(fields, FieldTraceID, v)
	}
	return fields
}

// LoggerFromContext returns a logger pre-populated with context fields.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
