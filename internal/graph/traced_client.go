package graph

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vanshika/fingraph/internal/graph"

// QueryObserver receives the outcome of every statement executed through a TracedClient.
type QueryObserver interface {
	ObserveGraphQuery(mode string, seconds float64, err error)
}

// TracedClient wraps a Client and records one span per statement.
type TracedClient struct {
	inner    Client
	tracer   trace.Tracer
	database string
	observer QueryObserver
}

// TracedOption customises a TracedClient.
type TracedOption func(*TracedClient)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracedOption {
	return func(c *TracedClient) { c.tracer = tp.Tracer(tracerName) }
}

// WithQueryObserver reports latency and errors for each statement.
func WithQueryObserver(o QueryObserver) TracedOption {
	return func(c *TracedClient) { c.observer = o }
}

// NewTracedClient decorates inner with OpenTelemetry spans.
func NewTracedClient(inner Client, database string, opts ...TracedOption) *TracedClient {
	c := &TracedClient{
		inner:    inner,
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		database: database,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TracedClient) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return c.run(ctx, "write", cypher, params, c.inner.ExecuteWrite)
}

func (c *TracedClient) ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return c.run(ctx, "read", cypher, params, c.inner.ExecuteRead)
}

func (c *TracedClient) VerifyConnectivity(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "graph.verify_connectivity", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	err := c.inner.VerifyConnectivity(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *TracedClient) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}

type executeFunc func(context.Context, string, map[string]any) (Result, error)

func (c *TracedClient) run(ctx context.Context, mode, cypher string, params map[string]any, exec executeFunc) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "graph."+mode,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "neo4j"),
			attribute.String("db.name", c.database),
			attribute.String("db.operation", operationName(cypher)),
			attribute.String("db.statement", cypher),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := exec(ctx, cypher, params)
	if c.observer != nil {
		c.observer.ObserveGraphQuery(mode, time.Since(start).Seconds(), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Int("db.records", len(res.Records)))
	return res, nil
}

// operationName returns the leading clause keyword of a statement.
func operationName(cypher string) string {
	fields := strings.Fields(cypher)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
