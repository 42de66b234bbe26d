package otelhelper

import (
	"github.com/dukex/stepflow/pkg/failure"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed. attrs are attached to the recorded exception
// event, and classified errors also tag the span with their kind.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if kind, ok := failure.KindOf(err); ok {
		span.SetAttributes(attribute.String(ErrorKindKey, kind.String()))
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
