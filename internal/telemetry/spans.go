package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartStageSpan opens a span for one pipeline stage of one execution.
func StartStageSpan(ctx context.Context, stage, executionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline.stage."+stage,
		trace.WithAttributes(
			attribute.String("pipeline.stage", stage),
			attribute.String("pipeline.execution_id", executionID),
		),
	)
}

// StartDispatchSpan opens a span around the transport call.
func StartDispatchSpan(ctx context.Context, transport, executionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("pipeline.transport", transport),
			attribute.String("pipeline.execution_id", executionID),
		),
	)
}

// RecordError marks the current span as failed.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
