package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/failure"
	"github.com/dukex/stepflow/pkg/models"
)

// Publishing forwards lifecycle events to an event bus. Publish failures are
// logged and dropped.
type Publishing struct {
	publisher eventbus.EventPublisher
	workerID  string
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	starts map[runKey]time.Time
}

func NewPublishing(publisher eventbus.EventPublisher, workerID string, logger *slog.Logger) *Publishing {
	return &Publishing{
		publisher: publisher,
		workerID:  workerID,
		logger:    logger.With("module", "metrics_publishing"),
		now:       time.Now,
		starts:    make(map[runKey]time.Time),
	}
}

func (p *Publishing) base(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = p.workerID

	return base
}

func (p *Publishing) publish(ctx context.Context, workflowID, eventID string, event eventbus.Event) {
	err := p.publisher.Publish(ctx, workflowID, event)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish run event",
			"event_type", event.GetType(),
			"workflow_id", workflowID,
			"event_id", eventID,
			"error", err,
		)
	}
}

func (p *Publishing) StartWorkflow(ctx context.Context, workflowID, eventID string) {
	p.mu.Lock()
	p.starts[runKey{workflowID, eventID}] = p.now()
	p.mu.Unlock()

	p.publish(ctx, workflowID, eventID, &events.WorkflowStarted{
		BaseEvent: p.base(events.WorkflowStartedEvent, workflowID),
		EventID:   eventID,
	})
}

func (p *Publishing) RecordStep(ctx context.Context, workflowID, eventID string, record models.StepRecord) {
	p.publish(ctx, workflowID, eventID, &events.StepRecorded{
		BaseEvent: p.base(events.StepRecordedEvent, workflowID),
		EventID:   eventID,
		Step:      record,
	})
}

func (p *Publishing) EndWorkflow(ctx context.Context, workflowID, eventID string, err error) {
	key := runKey{workflowID, eventID}

	p.mu.Lock()
	start, ok := p.starts[key]
	delete(p.starts, key)
	p.mu.Unlock()

	var duration time.Duration
	if ok {
		duration = p.now().Sub(start)
	}

	if err == nil {
		p.publish(ctx, workflowID, eventID, &events.WorkflowFinished{
			BaseEvent: p.base(events.WorkflowFinishedEvent, workflowID),
			EventID:   eventID,
			Duration:  duration,
		})

		return
	}

	p.publish(ctx, workflowID, eventID, &events.WorkflowFailed{
		BaseEvent:  p.base(events.WorkflowFailedEvent, workflowID),
		EventID:    eventID,
		Error:      err.Error(),
		Terminated: failure.IsTerminate(err),
		Duration:   duration,
	})
}
