package mocks

import (
	"context"

	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockCollector is a mock implementation of metrics.Collector interface.
type MockCollector struct {
	mock.Mock
}

var _ metrics.Collector = (*MockCollector)(nil)

func (m *MockCollector) StartWorkflow(ctx context.Context, workflowID, eventID string) {
	m.Called(ctx, workflowID, eventID)
}

func (m *MockCollector) EndWorkflow(ctx context.Context, workflowID, eventID string, err error) {
	m.Called(ctx, workflowID, eventID, err)
}

func (m *MockCollector) RecordStep(ctx context.Context, workflowID, eventID string, record models.StepRecord) {
	m.Called(ctx, workflowID, eventID, record)
}
