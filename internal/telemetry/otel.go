package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OTel tracer so the engine can emit one span per step
// without taking a hard dependency on a configured exporter: when none is
// registered, the global no-op tracer provider is used and these calls
// cost nothing but a function call.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer over the named instrumentation scope.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// StartStep opens a span for one step execution; callers must End() it.
func (t *Tracer) StartStep(ctx context.Context, stepID, kind, worker string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("step.kind", kind),
			attribute.String("step.worker", worker),
		),
	)
}
