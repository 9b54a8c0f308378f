package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of kernel spans.
const TracerName = "github.com/xiaot623/gogo/kernel"

// Span attributes.
var (
	AttrTenantID   = attribute.Key("kernel.tenant.id")
	AttrSessionID  = attribute.Key("kernel.session.id")
	AttrRunID      = attribute.Key("kernel.run.id")
	AttrZoneID     = attribute.Key("kernel.zone.id")
	AttrTypeID     = attribute.Key("kernel.capability.type_id")
	AttrVersion    = attribute.Key("kernel.capability.version")
	AttrCapability = attribute.Key("kernel.capability.name")
	AttrScriptID   = attribute.Key("kernel.script.id")
	AttrStepType   = attribute.Key("kernel.script.step_type")
	AttrOutcome    = attribute.Key("kernel.outcome")
)

// Tracer returns the kernel tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(AttrOutcome.String(outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// AddSpanEvent adds an event to the span in ctx.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
