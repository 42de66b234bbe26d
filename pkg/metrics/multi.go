package metrics

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

// Multi forwards every event to each collector in order.
type Multi []Collector

func NewMulti(collectors ...Collector) Multi {
	filtered := make(Multi, 0, len(collectors))

	for _, c := range collectors {
		if c != nil {
			filtered = append(filtered, c)
		}
	}

	return filtered
}

func (m Multi) StartWorkflow(ctx context.Context, workflowID, eventID string) {
	for _, c := range m {
		c.StartWorkflow(ctx, workflowID, eventID)
	}
}

func (m Multi) EndWorkflow(ctx context.Context, workflowID, eventID string, err error) {
	for _, c := range m {
		c.EndWorkflow(ctx, workflowID, eventID, err)
	}
}

func (m Multi) RecordStep(ctx context.Context, workflowID, eventID string, record models.StepRecord) {
	for _, c := range m {
		c.RecordStep(ctx, workflowID, eventID, record)
	}
}
