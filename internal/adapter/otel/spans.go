package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentrelay"

// StartStoreSpan starts a span for one A2A persistence operation.
func StartStoreSpan(ctx context.Context, op, entityID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "a2a."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("a2a.op", op),
			attribute.String("a2a.entity_id", entityID),
		),
	)
}

// StartToolCallSpan starts a span for one request to a tool server.
func StartToolCallSpan(ctx context.Context, server, method string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "mcp."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("mcp.server", server),
			attribute.String("mcp.method", method),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
