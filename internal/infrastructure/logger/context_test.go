package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()), "nop logger when absent")

	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))

	ctx := context.WithValue(context.Background(), loggerKey, "not a logger")
	assert.NotNil(t, FromContext(ctx))
}

func TestWithRunAndDocument(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, runLogger := WithRun(context.Background(), zap.New(core), "bizimhesap", "run-42")
	assert.Equal(t, "bizimhesap", GetSourceID(ctx))
	assert.Equal(t, "run-42", GetRunID(ctx))
	assert.Empty(t, GetExternalID(ctx))

	ctx, docLogger := WithDocument(ctx, "INV-7")
	assert.Equal(t, "INV-7", GetExternalID(ctx))
	assert.Equal(t, "run-42", GetRunID(ctx), "run fields survive")

	runLogger.Info("run")
	docLogger.Info("doc")
	FromContext(ctx).Info("ctx")

	logs := recorded.All()
	require.Len(t, logs, 3)
	assert.Equal(t, map[string]any{"source_id": "bizimhesap", "run_id": "run-42"}, logs[0].ContextMap())
	assert.Equal(t, "INV-7", logs[1].ContextMap()["external_id"])
	assert.Equal(t, "INV-7", logs[2].ContextMap()["external_id"])
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(&buf), zapcore.InfoLevel))

	ctx, reqLogger := WithRequestID(context.Background(), l, "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	reqLogger.Info("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestWithTraceContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	assert.Same(t, base, WithTraceContext(context.Background(), base), "no span, unchanged")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(WithContext(context.Background(), base), sc)

	L(ctx).Info("traced")
	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, traceID.String(), logs[0].ContextMap()["trace_id"])
	assert.Equal(t, spanID.String(), logs[0].ContextMap()["span_id"])
}
