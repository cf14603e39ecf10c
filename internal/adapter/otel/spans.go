package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "taskmanager"

// StartTaskSpan starts a span for a task operation. taskID is omitted when
// zero (list, create before insert).
func StartTaskSpan(ctx context.Context, op string, taskID, actorID int64) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("task.operation", op),
		attribute.Int64("actor.id", actorID),
	}
	if taskID != 0 {
		attrs = append(attrs, attribute.Int64("task.id", taskID))
	}
	return otel.Tracer(tracerName).Start(ctx, "task."+op, trace.WithAttributes(attrs...))
}

// StartNotifySpan starts a span for publishing a change event.
func StartNotifySpan(ctx context.Context, channel string, taskID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "notify",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", channel),
			attribute.Int64("task.id", taskID),
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
