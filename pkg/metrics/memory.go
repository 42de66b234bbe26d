package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/models"
)

// Memory keeps run records in process.
type Memory struct {
	mu   sync.RWMutex
	runs map[runKey]*models.Run
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		runs: make(map[runKey]*models.Run),
		now:  time.Now,
	}
}

func (m *Memory) StartWorkflow(_ context.Context, workflowID, eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[runKey{workflowID, eventID}] = models.NewRun(workflowID, eventID, m.now())
}

func (m *Memory) EndWorkflow(_ context.Context, workflowID, eventID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := m.lookupOrCreate(workflowID, eventID)
	run.Finish(RunStatusFor(err), errorMessage(err), m.now())
}

func (m *Memory) RecordStep(_ context.Context, workflowID, eventID string, record models.StepRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := m.lookupOrCreate(workflowID, eventID)
	run.Steps = append(run.Steps, record)
}

// Run returns a copy of the run record, if present.
func (m *Memory) Run(workflowID, eventID string) (*models.Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runKey{workflowID, eventID}]
	if !ok {
		return nil, false
	}

	return run.Clone(), true
}

// Runs returns copies of all run records ordered by start time.
func (m *Memory) Runs() []*models.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*models.Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run.Clone())
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.Before(runs[j].StartTime)
	})

	return runs
}

// Reset drops every record.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = make(map[runKey]*models.Run)
}

func (m *Memory) lookupOrCreate(workflowID, eventID string) *models.Run {
	key := runKey{workflowID, eventID}

	run, ok := m.runs[key]
	if !ok {
		run = models.NewRun(workflowID, eventID, m.now())
		m.runs[key] = run
	}

	return run
}
