// Package otelhelper provides distributed tracing setup and span helpers for workflow runs.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Common attribute keys.
	WorkflowIDKey = "stepflow.workflow.id"
	EventIDKey    = "stepflow.event.id"
	RunStatusKey  = "stepflow.run.status"
	StepIDKey     = "stepflow.step.id"
	StepNameKey   = "stepflow.step.name"
	StepStatusKey = "stepflow.step.status"
	AttemptsKey   = "stepflow.step.attempts"
	WorkerIDKey   = "stepflow.worker.id"
	ErrorKindKey  = "stepflow.error.kind"
)

// NewTracerProvider builds an OTLP/HTTP exporting provider and installs it as
// the global provider. The exporter reads the standard OTEL_EXPORTER_OTLP_*
// environment variables. Callers must Shutdown the provider to flush spans.
func NewTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RunAttributes identifies a workflow run on a span.
func RunAttributes(workflowID, eventID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(WorkflowIDKey, workflowID),
		attribute.String(EventIDKey, eventID),
	}
}
