package metrics

import (
	"context"
	"errors"
	"sync"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	runSpanName  = "workflow.run"
	stepSpanName = "workflow.step"
)

type runSpan struct {
	ctx  context.Context
	span trace.Span
}

// Tracing turns runs into OpenTelemetry spans: one span per run with a child
// span per recorded step, back-dated to the step's own start and end times.
type Tracing struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[runKey]runSpan
}

func NewTracing(tracer trace.Tracer) *Tracing {
	return &Tracing{
		tracer: tracer,
		spans:  make(map[runKey]runSpan),
	}
}

func (t *Tracing) StartWorkflow(ctx context.Context, workflowID, eventID string) {
	spanCtx, span := otelhelper.StartSpan(ctx, t.tracer, runSpanName, otelhelper.RunAttributes(workflowID, eventID)...)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.spans[runKey{workflowID, eventID}] = runSpan{ctx: spanCtx, span: span}
}

func (t *Tracing) RecordStep(ctx context.Context, workflowID, eventID string, record models.StepRecord) {
	parent := ctx

	t.mu.Lock()
	if run, ok := t.spans[runKey{workflowID, eventID}]; ok {
		parent = run.ctx
	}
	t.mu.Unlock()

	attrs := append(otelhelper.RunAttributes(workflowID, eventID),
		attribute.String(otelhelper.StepIDKey, record.StepID),
		attribute.String(otelhelper.StepNameKey, record.Name),
		attribute.String(otelhelper.StepStatusKey, string(record.Status)),
		attribute.Int(otelhelper.AttemptsKey, record.Attempts),
	)

	_, span := t.tracer.Start(parent, stepSpanName,
		trace.WithTimestamp(record.StartTime),
		trace.WithAttributes(attrs...),
	)

	if record.Status == models.StepStatusFailure {
		otelhelper.SetError(span, errors.New(record.Error), attribute.String(otelhelper.StepNameKey, record.Name))
	}

	span.End(trace.WithTimestamp(record.EndTime))
}

func (t *Tracing) EndWorkflow(_ context.Context, workflowID, eventID string, err error) {
	key := runKey{workflowID, eventID}

	t.mu.Lock()
	run, ok := t.spans[key]
	delete(t.spans, key)
	t.mu.Unlock()

	if !ok {
		return
	}

	run.span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(RunStatusFor(err))))

	if err != nil {
		otelhelper.SetError(run.span, err, otelhelper.RunAttributes(workflowID, eventID)...)
	}

	run.span.End()
}
