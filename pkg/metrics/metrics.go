// Package metrics records run and step lifecycle events produced by the
// workflow engine.
package metrics

import (
	"context"

	"github.com/dukex/stepflow/pkg/failure"
	"github.com/dukex/stepflow/pkg/models"
)

// Collector receives run and step lifecycle events. Implementations must be
// safe for concurrent use by runs with distinct (workflowID, eventID) pairs.
// The engine ignores collector failures.
type Collector interface {
	StartWorkflow(ctx context.Context, workflowID, eventID string)
	EndWorkflow(ctx context.Context, workflowID, eventID string, err error)
	RecordStep(ctx context.Context, workflowID, eventID string, record models.StepRecord)
}

// RunStatusFor maps the error a run ended with to its final status.
func RunStatusFor(err error) models.RunStatus {
	switch {
	case err == nil:
		return models.RunStatusSuccess
	case failure.IsTerminate(err):
		return models.RunStatusTerminated
	default:
		return models.RunStatusFailure
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

type runKey struct {
	workflowID string
	eventID    string
}
