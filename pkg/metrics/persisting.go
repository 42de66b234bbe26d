package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// Persisting keeps each in-flight run in memory and writes it through to a
// store after every change. A run is forgotten once it ends.
type Persisting struct {
	store  persistence.Persistence
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	runs map[runKey]*models.Run
}

func NewPersisting(store persistence.Persistence, logger *slog.Logger) *Persisting {
	return &Persisting{
		store:  store,
		logger: logger.With("module", "metrics_persisting"),
		now:    time.Now,
		runs:   make(map[runKey]*models.Run),
	}
}

// InFlight returns the number of runs started but not yet ended.
func (p *Persisting) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.runs)
}

func (p *Persisting) save(ctx context.Context, run *models.Run) {
	err := p.store.SaveRun(ctx, run)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save run",
			"workflow_id", run.WorkflowID,
			"event_id", run.EventID,
			"error", err,
		)
	}
}

// update applies change to the run under lock and returns a snapshot to save.
func (p *Persisting) update(workflowID, eventID string, change func(run *models.Run)) *models.Run {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := runKey{workflowID, eventID}

	run, ok := p.runs[key]
	if !ok {
		run = models.NewRun(workflowID, eventID, p.now())
		p.runs[key] = run
	}

	change(run)

	return run.Clone()
}

func (p *Persisting) StartWorkflow(ctx context.Context, workflowID, eventID string) {
	p.mu.Lock()
	run := models.NewRun(workflowID, eventID, p.now())
	p.runs[runKey{workflowID, eventID}] = run
	snapshot := run.Clone()
	p.mu.Unlock()

	p.save(ctx, snapshot)
}

func (p *Persisting) RecordStep(ctx context.Context, workflowID, eventID string, record models.StepRecord) {
	snapshot := p.update(workflowID, eventID, func(run *models.Run) {
		run.Steps = append(run.Steps, record)
	})

	p.save(ctx, snapshot)
}

func (p *Persisting) EndWorkflow(ctx context.Context, workflowID, eventID string, err error) {
	snapshot := p.update(workflowID, eventID, func(run *models.Run) {
		run.Finish(RunStatusFor(err), errorMessage(err), p.now())
	})

	p.mu.Lock()
	delete(p.runs, runKey{workflowID, eventID})
	p.mu.Unlock()

	p.save(ctx, snapshot)
}
