package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/schedule"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 30 * time.Second

// NewCollector fans run metrics out to the run store and the event bus. A
// non-nil tracer adds a span per run and per step. Nothing here keeps a run
// after it ends.
func NewCollector(workerID string, store persistence.Persistence, publisher eventbus.EventPublisher, tracer trace.Tracer, logger *slog.Logger) metrics.Multi {
	collectors := []metrics.Collector{
		metrics.NewPersisting(store, logger),
		metrics.NewPublishing(publisher, workerID, logger),
	}

	if tracer != nil {
		collectors = append(collectors, metrics.NewTracing(tracer))
	}

	return metrics.NewMulti(collectors...)
}

// Worker consumes WorkflowTriggered events and runs the registered
// workflows. An optional scheduler publishes triggers on cron specs.
type Worker struct {
	id        string
	eventBus  eventbus.EventBus
	registry  *registry.Registry
	scheduler *schedule.Scheduler
	logger    *slog.Logger
}

func NewWorker(id string, eventBus eventbus.EventBus, registry *registry.Registry, scheduler *schedule.Scheduler, logger *slog.Logger) *Worker {
	return &Worker{
		id:        id,
		eventBus:  eventBus,
		registry:  registry,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Start registers the trigger handler, subscribes to the event bus and
// starts the scheduler. It does not block.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "workflows", w.registry.IDs())

	err := w.eventBus.Handle(events.WorkflowTriggeredEvent, w.registry.Handler())
	if err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	if w.scheduler != nil {
		w.scheduler.Start()
	}

	return nil
}

// Stop waits for scheduled jobs in flight to finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Stopping worker")

	if w.scheduler == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return w.scheduler.Stop(ctx)
}
