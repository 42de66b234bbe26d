package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

var _ persistence.Persistence = (*postgresql.Persistence)(nil)

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last
	for _, table := range []string{"run_steps", "runs", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("stepflow_test"),
			postgres.WithUsername("stepflow"),
			postgres.WithPassword("stepflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func sampleRun(workflowID, eventID string, start time.Time) *models.Run {
	run := models.NewRun(workflowID, eventID, start)
	run.Steps = append(run.Steps,
		models.StepRecord{
			StepID:    "step-a",
			Name:      "fetch",
			StartTime: start,
			EndTime:   start.Add(time.Second),
			Status:    models.StepStatusSuccess,
			Attempts:  3,
		},
		models.StepRecord{
			StepID:    "step-b",
			Name:      "store",
			StartTime: start.Add(time.Second),
			EndTime:   start.Add(2 * time.Second),
			Status:    models.StepStatusFailure,
			Attempts:  1,
			Error:     "Terminated: bad input",
		},
	)
	run.Finish(models.RunStatusTerminated, "bad input", start.Add(3*time.Second))

	return run
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"runs", "run_steps", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestPersistence_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestPersistence_SaveAndRunByID(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	run := sampleRun("wf-1", "evt-1", start)
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.RunByID(ctx, "wf-1", "evt-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusTerminated, loaded.Status)
	assert.Equal(t, "bad input", loaded.Error)
	assert.True(t, start.Equal(loaded.StartTime))
	require.NotNil(t, loaded.EndTime)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "fetch", loaded.Steps[0].Name)
	assert.Equal(t, 3, loaded.Steps[0].Attempts)
	assert.Equal(t, "Terminated: bad input", loaded.Steps[1].Error)
	assert.Equal(t, 4, loaded.TotalAttempts())
}

func TestPersistence_SaveRunIsUpsert(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	start := time.Now().UTC().Truncate(time.Millisecond)

	run := models.NewRun("wf-1", "evt-1", start)
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.RunByID(ctx, "wf-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, loaded.Status)
	assert.Nil(t, loaded.EndTime)
	assert.Empty(t, loaded.Steps)

	run = sampleRun("wf-1", "evt-1", start)
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err = store.RunByID(ctx, "wf-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusTerminated, loaded.Status)
	assert.Len(t, loaded.Steps, 2)
}

func TestPersistence_RunNotFound(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, err := store.RunByID(ctx, "wf-1", "missing")
	assert.True(t, persistence.IsRunNotFound(err))

	err = store.DeleteRun(ctx, "wf-1", "missing")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestPersistence_SaveRunRequiresIDs(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	err := store.SaveRun(ctx, models.NewRun("wf-1", "", time.Now()))
	assert.ErrorIs(t, err, persistence.ErrInvalidRun)
}

func TestPersistence_Runs(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	first := models.NewRun("wf-a", "e1", base)
	first.Finish(models.RunStatusSuccess, "", base.Add(time.Second))
	second := models.NewRun("wf-a", "e2", base.Add(time.Minute))
	second.Finish(models.RunStatusFailure, "boom", base.Add(2*time.Minute))
	third := sampleRun("wf-b", "e3", base.Add(2*time.Minute))

	for _, run := range []*models.Run{first, second, third} {
		require.NoError(t, store.SaveRun(ctx, run))
	}

	all, err := store.Runs(ctx, persistence.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].EventID)
	assert.Len(t, all[0].Steps, 2)

	onlyA, err := store.Runs(ctx, persistence.RunFilter{WorkflowID: "wf-a"})
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, "e2", onlyA[0].EventID)

	failed, err := store.Runs(ctx, persistence.RunFilter{WorkflowID: "wf-a", Status: models.RunStatusFailure})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Error)

	page, err := store.Runs(ctx, persistence.RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "e2", page[0].EventID)
}

func TestPersistence_DeleteRunCascades(t *testing.T) {
	store, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, store.SaveRun(ctx, sampleRun("wf-1", "evt-1", time.Now())))
	require.NoError(t, store.DeleteRun(ctx, "wf-1", "evt-1"))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	var count int

	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_steps").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
