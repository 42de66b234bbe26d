// Package schedule publishes WorkflowTriggered events on cron schedules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/robfig/cron/v3"
)

const ScheduledAtMetadataKey = "scheduled_at"

// Job is one scheduled trigger.
type Job struct {
	Spec       string
	WorkflowID string
	Payload    map[string]any
}

// TriggerID identifies events fired by this job.
func (j Job) TriggerID() string {
	return "schedule:" + j.Spec
}

type Scheduler struct {
	cron      *cron.Cron
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	jobs map[cron.EntryID]Job
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

func NewScheduler(publisher eventbus.EventPublisher, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "schedule")
	adapter := cronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(
				cron.SkipIfStillRunning(adapter),
				cron.Recover(adapter),
			),
		),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		jobs:      make(map[cron.EntryID]Job),
	}
}

// Add schedules a trigger of workflowID with payload on a standard
// five-field cron spec or a descriptor such as "@every 1m".
func (s *Scheduler) Add(spec, workflowID string, payload map[string]any) (cron.EntryID, error) {
	if workflowID == "" {
		return 0, fmt.Errorf("schedule %q has no workflow id", spec)
	}

	_, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression: %w", err)
	}

	job := Job{Spec: spec, WorkflowID: workflowID, Payload: payload}

	id, err := s.cron.AddFunc(spec, func() {
		err := s.Fire(context.Background(), job)
		if err != nil {
			s.logger.Error("Failed to publish scheduled trigger", "workflow_id", job.WorkflowID, "error", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add cron job for workflow %s: %w", workflowID, err)
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	s.logger.Info("Scheduled workflow", "workflow_id", workflowID, "cron", spec, "entry_id", id)

	return id, nil
}

func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)

	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// Jobs returns the scheduled jobs keyed by entry id.
func (s *Scheduler) Jobs() map[cron.EntryID]Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.jobs)
}

// Fire publishes one trigger for job immediately.
func (s *Scheduler) Fire(ctx context.Context, job Job) error {
	payload := maps.Clone(job.Payload)
	if payload == nil {
		payload = map[string]any{}
	}

	event := events.NewWorkflowTriggered(job.WorkflowID, job.TriggerID(), payload)
	event.Metadata[ScheduledAtMetadataKey] = s.now().UTC().Format(time.RFC3339)

	s.logger.InfoContext(ctx, "Cron job triggered", "workflow_id", job.WorkflowID, "event_id", event.ID)

	return s.publisher.Publish(ctx, job.WorkflowID, event)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight publishes or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
