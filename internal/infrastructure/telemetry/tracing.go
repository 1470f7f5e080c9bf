package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for core operation spans
const TracerName = "core-platform"

// Span attribute keys shared by the core
const (
	AttrOrganizationID  = attribute.Key("core.organization_id")
	AttrTable           = attribute.Key("core.table")
	AttrRule            = attribute.Key("core.rule")
	AttrRuleFamily      = attribute.Key("core.rule_family")
	AttrResult          = attribute.Key("core.result")
	AttrTransactionType = attribute.Key("core.transaction_type")
	AttrStatus          = attribute.Key("core.status")
	AttrRunID           = attribute.Key("core.batch.run_id")
)

// StartSpan starts an internal span named {component}.{operation}.
// The caller must End the span.
func StartSpan(ctx context.Context, component, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, fmt.Sprintf("%s.%s", component, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the current trace id, or "" outside a sampled span
func TraceID(ctx context.Context) string {
	id := trace.SpanFromContext(ctx).SpanContext().TraceID()
	if !id.IsValid() {
		return ""
	}
	return id.String()
}
