package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// RunRepository stores one JSON file per run under <root>/runs/<workflow>/<event>.json.
type RunRepository struct {
	root string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

// validateID validates that an id is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("id contains invalid characters")
	}

	return nil
}

func (rr *RunRepository) runsDir() string {
	return filepath.Join(rr.root, "runs")
}

func (rr *RunRepository) path(workflowID, eventID string) (string, error) {
	if err := validateID(workflowID); err != nil {
		return "", fmt.Errorf("invalid workflow ID: %w", err)
	}

	if err := validateID(eventID); err != nil {
		return "", fmt.Errorf("invalid event ID: %w", err)
	}

	return filepath.Join(rr.runsDir(), workflowID, eventID+".json"), nil
}

// Save writes the run atomically, replacing any previous version.
func (rr *RunRepository) Save(_ context.Context, run *models.Run) error {
	err := persistence.ValidateRunIDs("SaveRun", run.WorkflowID, run.EventID)
	if err != nil {
		return err
	}

	filePath, err := rr.path(run.WorkflowID, run.EventID)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.WorkflowID, run.EventID, err)
	}

	err = os.MkdirAll(filepath.Dir(filePath), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s/%s: %w", run.WorkflowID, run.EventID, err)
	}

	tmpPath := filePath + ".tmp"

	err = os.WriteFile(tmpPath, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write run %s/%s: %w", run.WorkflowID, run.EventID, err)
	}

	err = os.Rename(tmpPath, filePath)
	if err != nil {
		return fmt.Errorf("failed to move run %s/%s into place: %w", run.WorkflowID, run.EventID, err)
	}

	return nil
}

// GetByID reads a single run.
func (rr *RunRepository) GetByID(_ context.Context, workflowID, eventID string) (*models.Run, error) {
	filePath, err := rr.path(workflowID, eventID)
	if err != nil {
		return nil, persistence.NewRunError("RunByID", workflowID, eventID, err)
	}

	return readRun(filePath, workflowID, eventID)
}

// GetAll reads every stored run.
func (rr *RunRepository) GetAll(_ context.Context) ([]*models.Run, error) {
	runs := []*models.Run{}

	workflowDirs, err := os.ReadDir(rr.runsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return runs, nil
		}

		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	for _, workflowDir := range workflowDirs {
		if !workflowDir.IsDir() {
			continue
		}

		dir := filepath.Join(rr.runsDir(), workflowDir.Name())

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read runs of workflow %s: %w", workflowDir.Name(), err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}

			eventID := strings.TrimSuffix(entry.Name(), ".json")

			run, err := readRun(filepath.Join(dir, entry.Name()), workflowDir.Name(), eventID)
			if err != nil {
				// Skip invalid files
				continue
			}

			runs = append(runs, run)
		}
	}

	return runs, nil
}

// Delete removes a run.
func (rr *RunRepository) Delete(_ context.Context, workflowID, eventID string) error {
	filePath, err := rr.path(workflowID, eventID)
	if err != nil {
		return persistence.NewRunError("DeleteRun", workflowID, eventID, err)
	}

	err = os.Remove(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewRunError("DeleteRun", workflowID, eventID, persistence.ErrRunNotFound)
		}

		return fmt.Errorf("failed to delete run %s/%s: %w", workflowID, eventID, err)
	}

	return nil
}

func readRun(filePath, workflowID, eventID string) (*models.Run, error) {
	data, err := os.ReadFile(filePath) // #nosec G304 -- filePath is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("RunByID", workflowID, eventID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to read run %s/%s: %w", workflowID, eventID, err)
	}

	var run models.Run

	err = json.Unmarshal(data, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s/%s: %w", workflowID, eventID, err)
	}

	return &run, nil
}

// SaveRun saves a run record to the file system.
func (fp *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	return fp.runRepo.Save(ctx, run)
}

// RunByID returns a run by its workflow and event ids.
func (fp *Persistence) RunByID(ctx context.Context, workflowID, eventID string) (*models.Run, error) {
	return fp.runRepo.GetByID(ctx, workflowID, eventID)
}

// Runs lists runs matching filter, newest first.
func (fp *Persistence) Runs(ctx context.Context, filter persistence.RunFilter) ([]*models.Run, error) {
	runs, err := fp.runRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	return persistence.ApplyFilter(runs, filter), nil
}

// DeleteRun removes a run record.
func (fp *Persistence) DeleteRun(ctx context.Context, workflowID, eventID string) error {
	return fp.runRepo.Delete(ctx, workflowID, eventID)
}
