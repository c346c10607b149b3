package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vanshika/fingraph/internal/config"
)

func TestNewWithWriter_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "JSON"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewTracerProvider_LogsSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	tp, shutdown := NewTracerProvider(config.TracingConfig{Enabled: true, ServiceName: "test"}, logger)
	_, span := tp.Tracer("test").Start(context.Background(), "graph.read")
	span.SetAttributes(attribute.String("db.operation", "MATCH"))
	span.SetStatus(codes.Error, "boom")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "graph.read", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "MATCH", entry["db.operation"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, shutdown := NewTracerProvider(config.TracingConfig{}, slog.Default())
	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewWithWriter_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Format: "json"}, &buf).With("component", "consumer")

	tp, shutdown := NewTracerProvider(config.TracingConfig{Enabled: true, ServiceName: "test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer func() { _ = shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "apply")
	logger.InfoContext(ctx, "applied")
	span.End()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	assert.Equal(t, "consumer", entry["component"])

	buf.Reset()
	entry = map[string]any{}
	logger.Info("no span")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasTrace := entry["trace_id"]
	assert.False(t, hasTrace)
}
