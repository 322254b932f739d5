package observability

import (
	"context"
	"errors"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danmuck/reckoning"

// Spans use the global provider; without one configured they are no-ops.
func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSessionSpan opens the span covering one realm connection.
func StartSessionSpan(ctx context.Context, transport, remote string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "realm.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("reckoning.transport", transport),
			attribute.String("net.peer.addr", remote),
		),
	)
}

// EndSpan records err on span and ends it. io.EOF and context cancellation
// count as a clean finish.
func EndSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
