package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey     contextKey = "logger"
	requestIDKey  contextKey = "request_id"
	runIDKey      contextKey = "run_id"
	sourceIDKey   contextKey = "source_id"
	externalIDKey contextKey = "external_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, a no-op logger when absent
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID tags the context and its logger with an admin request id
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	l := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, l), l
}

// WithRun tags the context and its logger with a sync run
func WithRun(ctx context.Context, logger *zap.Logger, sourceID, runID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, sourceIDKey, sourceID)
	ctx = context.WithValue(ctx, runIDKey, runID)
	l := logger.With(zap.String("source_id", sourceID), zap.String("run_id", runID))
	return WithContext(ctx, l), l
}

// WithDocument tags the context logger with the external id of the document
// being processed
func WithDocument(ctx context.Context, externalID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, externalIDKey, externalID)
	l := FromContext(ctx).With(zap.String("external_id", externalID))
	return WithContext(ctx, l), l
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetRequestID retrieves the request id from context
func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// GetRunID retrieves the run id from context
func GetRunID(ctx context.Context) string { return stringValue(ctx, runIDKey) }

// GetSourceID retrieves the source id from context
func GetSourceID(ctx context.Context) string { return stringValue(ctx, sourceIDKey) }

// GetExternalID retrieves the external document id from context
func GetExternalID(ctx context.Context) string { return stringValue(ctx, externalIDKey) }

// WithTraceContext adds trace_id and span_id to the logger from the context's span.
// If no valid span exists, returns the original logger unchanged.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

// L returns the context logger with trace correlation fields
func L(ctx context.Context) *zap.Logger {
	return WithTraceContext(ctx, FromContext(ctx))
}
