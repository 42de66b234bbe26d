// Package events defines event types and structures for workflow run notifications.
package events

import (
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every workflow event.
const Topic = "stepflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound: asks a worker to run a workflow.
	WorkflowTriggeredEvent EventType = "workflow.triggered"

	// Outbound run lifecycle.
	WorkflowStartedEvent  EventType = "workflow.started"
	StepRecordedEvent     EventType = "step.recorded"
	WorkflowFinishedEvent EventType = "workflow.finished"
	WorkflowFailedEvent   EventType = "workflow.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowTriggered requests one run of WorkflowID with TriggerData as its
// payload. The run's event id is the event's own ID.
type WorkflowTriggered struct {
	BaseEvent

	TriggerID   string         `json:"trigger_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type WorkflowStarted struct {
	BaseEvent

	EventID string `json:"event_id"`
}

func (w WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

type StepRecorded struct {
	BaseEvent

	EventID string            `json:"event_id"`
	Step    models.StepRecord `json:"step"`
}

func (s StepRecorded) GetType() EventType {
	return StepRecordedEvent
}

type WorkflowFinished struct {
	BaseEvent

	EventID  string        `json:"event_id"`
	Duration time.Duration `json:"duration"`
}

func (w WorkflowFinished) GetType() EventType {
	return WorkflowFinishedEvent
}

type WorkflowFailed struct {
	BaseEvent

	EventID    string        `json:"event_id"`
	Error      string        `json:"error"`
	Terminated bool          `json:"terminated"`
	Duration   time.Duration `json:"duration"`
}

func (w WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// NewWorkflowTriggered builds a trigger event for workflowID.
func NewWorkflowTriggered(workflowID, triggerID string, data map[string]any) *WorkflowTriggered {
	return &WorkflowTriggered{
		BaseEvent:   NewBaseEvent(WorkflowTriggeredEvent, workflowID),
		TriggerID:   triggerID,
		TriggerData: data,
	}
}
