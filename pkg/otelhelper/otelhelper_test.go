package otelhelper

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/stepflow/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := StartSpan(t.Context(), tracer, "workflow.run", RunAttributes("wf-1", "evt-1")...)
	SetError(span, errors.New("boom"), attribute.String(StepNameKey, "fetch"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	ended := spans[0]
	assert.Equal(t, "workflow.run", ended.Name())
	assert.Equal(t, codes.Error, ended.Status().Code)
	assert.Equal(t, "boom", ended.Status().Description)
	assert.Contains(t, ended.Attributes(), attribute.String(WorkflowIDKey, "wf-1"))
	assert.Contains(t, ended.Attributes(), attribute.String(EventIDKey, "evt-1"))

	require.Len(t, ended.Events(), 1)
	assert.Equal(t, "exception", ended.Events()[0].Name)
	assert.Contains(t, ended.Events()[0].Attributes, attribute.String(StepNameKey, "fetch"))

	for _, attr := range ended.Attributes() {
		assert.NotEqual(t, attribute.Key(ErrorKindKey), attr.Key)
	}
}

func TestSetError_TagsFailureKind(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(t.Context(), provider.Tracer("test"), "workflow.step")
	SetError(span, fmt.Errorf("fetch: %w", failure.Terminate("gone")))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(), attribute.String(ErrorKindKey, failure.KindTerminate.String()))
	assert.Equal(t, "fetch: gone", spans[0].Status().Description)
}
