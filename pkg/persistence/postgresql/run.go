package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

type scanner interface {
	Scan(dest ...any) error
}

// Save upserts the run row and rewrites its steps in one transaction.
func (r *RunRepository) Save(ctx context.Context, run *models.Run) error {
	err := persistence.ValidateRunIDs("SaveRun", run.WorkflowID, run.EventID)
	if err != nil {
		return err
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = transaction.Rollback()
		}
	}()

	query := `
		INSERT INTO runs (workflow_id, event_id, status, start_time, end_time, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id, event_id) DO UPDATE SET
			status = EXCLUDED.status
		  , start_time = EXCLUDED.start_time
		  , end_time = EXCLUDED.end_time
		  , error = EXCLUDED.error
	`

	_, err = transaction.ExecContext(ctx, query,
		run.WorkflowID, run.EventID, string(run.Status), run.StartTime.UTC(), nullTime(run.EndTime), run.Error)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	_, err = transaction.ExecContext(ctx,
		"DELETE FROM run_steps WHERE workflow_id = $1 AND event_id = $2", run.WorkflowID, run.EventID)
	if err != nil {
		return fmt.Errorf("failed to clear run steps: %w", err)
	}

	for position, step := range run.Steps {
		_, err = transaction.ExecContext(ctx, `
			INSERT INTO run_steps (workflow_id, event_id, position, step_id, name, status, start_time, end_time, attempts, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			run.WorkflowID, run.EventID, position, step.StepID, step.Name, string(step.Status),
			step.StartTime.UTC(), step.EndTime.UTC(), step.Attempts, step.Error)
		if err != nil {
			return fmt.Errorf("failed to save step %s: %w", step.StepID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// GetByID returns one run with its steps.
func (r *RunRepository) GetByID(ctx context.Context, workflowID, eventID string) (*models.Run, error) {
	query := `
		SELECT
			workflow_id
		  , event_id
		  , status
		  , start_time
		  , end_time
		  , error
		FROM runs
		WHERE workflow_id = $1 AND event_id = $2
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, workflowID, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByID", workflowID, eventID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	err = r.loadSteps(ctx, run)
	if err != nil {
		return nil, err
	}

	return run, nil
}

// List returns runs matching filter, newest first.
func (r *RunRepository) List(ctx context.Context, filter persistence.RunFilter) ([]*models.Run, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		conditions = append(conditions, "workflow_id = $"+strconv.Itoa(len(args)))
	}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = persistence.DefaultListLimit
	}

	query := `
		SELECT
			workflow_id
		  , event_id
		  , status
		  , start_time
		  , end_time
		  , error
		FROM runs
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	for _, run := range runs {
		err := r.loadSteps(ctx, run)
		if err != nil {
			return nil, err
		}
	}

	return runs, nil
}

// Delete removes a run; its steps cascade.
func (r *RunRepository) Delete(ctx context.Context, workflowID, eventID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM runs WHERE workflow_id = $1 AND event_id = $2", workflowID, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewRunError("DeleteRun", workflowID, eventID, persistence.ErrRunNotFound)
	}

	return nil
}

func (r *RunRepository) loadSteps(ctx context.Context, run *models.Run) error {
	query := `
		SELECT
			step_id
		  , name
		  , status
		  , start_time
		  , end_time
		  , attempts
		  , error
		FROM run_steps
		WHERE workflow_id = $1 AND event_id = $2
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, run.WorkflowID, run.EventID)
	if err != nil {
		return fmt.Errorf("failed to query run steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	run.Steps = make([]models.StepRecord, 0)

	for rows.Next() {
		var (
			step   models.StepRecord
			status string
		)

		err := rows.Scan(&step.StepID, &step.Name, &status, &step.StartTime, &step.EndTime, &step.Attempts, &step.Error)
		if err != nil {
			return fmt.Errorf("failed to scan run step: %w", err)
		}

		step.Status = models.StepStatus(status)
		step.StartTime = step.StartTime.UTC()
		step.EndTime = step.EndTime.UTC()
		run.Steps = append(run.Steps, step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating run steps: %w", err)
	}

	return nil
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		run     models.Run
		status  string
		endTime sql.NullTime
	)

	err := row.Scan(&run.WorkflowID, &run.EventID, &status, &run.StartTime, &endTime, &run.Error)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.StartTime = run.StartTime.UTC()

	if endTime.Valid {
		end := endTime.Time.UTC()
		run.EndTime = &end
	}

	return &run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}
