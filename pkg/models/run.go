// Package models holds the records produced by workflow runs.
package models

import (
	"time"
)

type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusSuccess    RunStatus = "success"
	RunStatusFailure    RunStatus = "failure"
	RunStatusTerminated RunStatus = "terminated"
)

type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailure StepStatus = "failure"
)

// StepRecord describes one step.Do invocation, including all of its attempts.
type StepRecord struct {
	StepID    string     `json:"step_id"`
	Name      string     `json:"name"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Status    StepStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
}

// Duration returns the wall time spent on the step.
func (s StepRecord) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Run is the metrics span of one workflow execution.
type Run struct {
	WorkflowID string       `json:"workflow_id"`
	EventID    string       `json:"event_id"`
	Status     RunStatus    `json:"status"`
	StartTime  time.Time    `json:"start_time"`
	EndTime    *time.Time   `json:"end_time,omitempty"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepRecord `json:"steps"`
}

// NewRun returns a running record started at now.
func NewRun(workflowID, eventID string, now time.Time) *Run {
	return &Run{
		WorkflowID: workflowID,
		EventID:    eventID,
		Status:     RunStatusRunning,
		StartTime:  now,
		Steps:      []StepRecord{},
	}
}

// Finish closes the run with the given status.
func (r *Run) Finish(status RunStatus, errMessage string, now time.Time) {
	r.Status = status
	r.Error = errMessage
	r.EndTime = &now
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Run) Clone() *Run {
	clone := *r

	clone.Steps = make([]StepRecord, len(r.Steps))
	copy(clone.Steps, r.Steps)

	if r.EndTime != nil {
		end := *r.EndTime
		clone.EndTime = &end
	}

	return &clone
}

// TotalAttempts sums the attempts of all recorded steps.
func (r *Run) TotalAttempts() int {
	total := 0
	for _, step := range r.Steps {
		total += step.Attempts
	}

	return total
}
