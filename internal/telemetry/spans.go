package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "roastbot"

// StartRunSpan starts the root span of a run.
func StartRunSpan(ctx context.Context, runID string, targets int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.targets", targets),
		),
	)
}

// StartTargetSpan starts a span for one company processor.
func StartTargetSpan(ctx context.Context, runID string, index int, website string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "target",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("target.index", index),
			attribute.String("target.website", website),
		),
	)
}

// StartStageSpan starts a span for one processor stage (extract, critique, store).
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, stage)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
