package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vanshika/fingraph/internal/config"
)

// NewTracerProvider returns a provider whose finished spans are written to logger at debug
// level, or a no-op provider when tracing is disabled. The returned func flushes and stops it.
func NewTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (trace.TracerProvider, func(context.Context) error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
		sdktrace.WithBatcher(&spanLogger{logger: logger.With("component", "tracing")}),
	)
	return tp, tp.Shutdown
}

// spanLogger exports spans as log records.
type spanLogger struct {
	logger *slog.Logger
}

func (e *spanLogger) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []any{
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()),
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}
		level := slog.LevelDebug
		if s.Status().Code == codes.Error {
			level = slog.LevelWarn
			attrs = append(attrs, "error", s.Status().Description)
		}
		e.logger.Log(ctx, level, s.Name(), attrs...)
	}
	return nil
}

func (e *spanLogger) Shutdown(context.Context) error {
	return nil
}
