package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "kernel-sentinel"

// Tracer wraps OpenTelemetry tracing for the sentinel.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("sentinel.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for execution tracing.
var (
	AttrExecutionCount = attribute.Key("sentinel.execution.count")
	AttrCellID         = attribute.Key("sentinel.execution.cell_id")
	AttrSuccess        = attribute.Key("sentinel.execution.success")
	AttrErrorKind      = attribute.Key("sentinel.execution.error_kind")
	AttrDurationMS     = attribute.Key("sentinel.execution.duration_ms")
)
