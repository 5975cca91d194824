package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across the service.
// Use these constants instead of raw strings to keep log queries stable.
const (
	// Identity and context
	FieldRequestID = "request_id"
	FieldClientID  = "client_id"

	// Components
	FieldComponent = "component"
	FieldService   = "service"

	// Operations
	FieldOperation = "operation"
	FieldMessage   = "message_name"
	FieldHandler   = "handler"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount     = "count"
	FieldQueueSize = "queue_size"
	FieldPayloadSz = "payload_bytes"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	// Network and partitioning
	FieldAddress   = "address"
	FieldPort      = "port"
	FieldHost      = "host"
	FieldPartition = "partition"
	FieldNodeID    = "node_id"
)

// Context keys for propagating logging context.
type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	componentKey contextKey = "logger_component"
)

// WithRequestID adds a request ID to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithComponent adds a component name to the context for logging.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context, suitable for
// use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context fields.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
