// Package postgresql provides PostgreSQL persistence implementation for run records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db      *sql.DB
	logger  *slog.Logger
	runRepo *RunRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:      database,
		logger:  logger,
		runRepo: NewRunRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// SaveRun upserts a run and replaces its step records.
func (p *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	return p.runRepo.Save(ctx, run)
}

// RunByID returns a run by its workflow and event ids.
func (p *Persistence) RunByID(ctx context.Context, workflowID, eventID string) (*models.Run, error) {
	return p.runRepo.GetByID(ctx, workflowID, eventID)
}

// Runs lists runs matching filter, newest first.
func (p *Persistence) Runs(ctx context.Context, filter persistence.RunFilter) ([]*models.Run, error) {
	return p.runRepo.List(ctx, filter)
}

// DeleteRun removes a run and its steps.
func (p *Persistence) DeleteRun(ctx context.Context, workflowID, eventID string) error {
	return p.runRepo.Delete(ctx, workflowID, eventID)
}
