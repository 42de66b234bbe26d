// Package persistence provides the storage abstraction for run records.
package persistence

import (
	"context"
	"sort"

	"github.com/dukex/stepflow/pkg/models"
)

const DefaultListLimit = 100

// RunFilter narrows a run listing. Zero values mean "any".
type RunFilter struct {
	WorkflowID string           `validate:"omitempty,max=255"`
	Status     models.RunStatus `validate:"omitempty,oneof=running success failure terminated"`
	Limit      int              `validate:"gte=0,lte=1000"`
	Offset     int              `validate:"gte=0"`
}

type Persistence interface {
	SaveRun(ctx context.Context, run *models.Run) error
	RunByID(ctx context.Context, workflowID, eventID string) (*models.Run, error)
	Runs(ctx context.Context, filter RunFilter) ([]*models.Run, error)
	DeleteRun(ctx context.Context, workflowID, eventID string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// Matches reports whether run passes the filter's workflow and status checks.
func (f RunFilter) Matches(run *models.Run) bool {
	if f.WorkflowID != "" && run.WorkflowID != f.WorkflowID {
		return false
	}

	if f.Status != "" && run.Status != f.Status {
		return false
	}

	return true
}

// ApplyFilter filters runs, orders them newest first and paginates them. It
// is used by stores that cannot filter natively.
func ApplyFilter(runs []*models.Run, filter RunFilter) []*models.Run {
	matched := make([]*models.Run, 0, len(runs))

	for _, run := range runs {
		if filter.Matches(run) {
			matched = append(matched, run)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartTime.After(matched[j].StartTime)
	})

	if filter.Offset >= len(matched) {
		return []*models.Run{}
	}

	matched = matched[filter.Offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched
}
