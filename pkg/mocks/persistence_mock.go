package mocks

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

var _ persistence.Persistence = (*MockPersistence)(nil)

func (m *MockPersistence) SaveRun(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockPersistence) RunByID(ctx context.Context, workflowID, eventID string) (*models.Run, error) {
	args := m.Called(ctx, workflowID, eventID)

	run, _ := args.Get(0).(*models.Run)

	return run, args.Error(1)
}

func (m *MockPersistence) Runs(ctx context.Context, filter persistence.RunFilter) ([]*models.Run, error) {
	args := m.Called(ctx, filter)

	runs, _ := args.Get(0).([]*models.Run)

	return runs, args.Error(1)
}

func (m *MockPersistence) DeleteRun(ctx context.Context, workflowID, eventID string) error {
	args := m.Called(ctx, workflowID, eventID)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
