package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/config"
	"github.com/dukex/stepflow/pkg/failure"
	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/gofiber/fiber/v3/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

func noSleep(context.Context, time.Duration) error { return nil }

func statusServer(t *testing.T, hits *atomic.Int32, statuses ...int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}

		w.WriteHeader(statuses[n])
	}))
	t.Cleanup(server.Close)

	return server
}

func newTestManager(t *testing.T, yaml string) *config.Manager {
	t.Helper()

	manager := config.NewManager(config.WithLogger(discard), config.WithSleeper(noSleep))
	if yaml == "" {
		return manager
	}

	path := filepath.Join(t.TempDir(), "steps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	source, err := config.LoadFileSource(path, 1)
	require.NoError(t, err)
	manager.AddSource(source)

	return manager
}

func runCheck(t *testing.T, manager *config.Manager, params HTTPCheckParams) (*models.Run, error) {
	t.Helper()

	collector := metrics.NewMemory()
	entrypoint := NewHTTPCheck(
		HTTPCheckEnv{Client: client.New(), Config: manager},
		workflow.WithMetricsCollector(collector),
		workflow.WithEntrypointLogger(discard),
		workflow.WithStepOptions(workflow.WithSleeper(noSleep)),
	)

	event := workflow.NewEvent(params)
	err := entrypoint.Execute(t.Context(), event)

	run, ok := collector.Run(HTTPCheckWorkflowID, event.ID)
	require.True(t, ok)

	return run, err
}

func TestHTTPCheck_Success(t *testing.T) {
	var hits atomic.Int32
	server := statusServer(t, &hits, http.StatusOK)

	run, err := runCheck(t, newTestManager(t, ""), HTTPCheckParams{URL: server.URL, Wait: "1 second"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	require.Len(t, run.Steps, 2)
	assert.Equal(t, "fetch", run.Steps[0].Name)
	assert.Equal(t, "verify", run.Steps[1].Name)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPCheck_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := statusServer(t, &hits, http.StatusServiceUnavailable, http.StatusOK)

	run, err := runCheck(t, newTestManager(t, ""), HTTPCheckParams{URL: server.URL})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Steps[0].Attempts)
}

func TestHTTPCheck_ConfiguredRetryLimit(t *testing.T) {
	var hits atomic.Int32
	server := statusServer(t, &hits, http.StatusBadGateway)

	manager := newTestManager(t, `
steps:
  http-check:
    fetch:
      retries:
        limit: 2
        delay: 10
        backoff: exponential
      timeout: 5 seconds
`)

	run, err := runCheck(t, manager, HTTPCheckParams{URL: server.URL})
	require.Error(t, err)

	assert.Equal(t, models.RunStatusFailure, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, 2, run.Steps[0].Attempts)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPCheck_ClientErrorTerminates(t *testing.T) {
	var hits atomic.Int32
	server := statusServer(t, &hits, http.StatusNotFound)

	run, err := runCheck(t, newTestManager(t, ""), HTTPCheckParams{URL: server.URL})
	require.Error(t, err)
	assert.True(t, failure.IsTerminate(err))

	assert.Equal(t, models.RunStatusTerminated, run.Status)
	assert.Equal(t, 1, run.Steps[0].Attempts)
	assert.Contains(t, run.Steps[0].Error, "Terminated: ")
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPCheck_UnexpectedStatus(t *testing.T) {
	var hits atomic.Int32
	server := statusServer(t, &hits, http.StatusNoContent)

	run, err := runCheck(t, newTestManager(t, ""), HTTPCheckParams{URL: server.URL, ExpectedStatus: http.StatusOK})
	require.Error(t, err)

	assert.Equal(t, models.RunStatusTerminated, run.Status)
	require.Len(t, run.Steps, 2)
	assert.Equal(t, models.StepStatusSuccess, run.Steps[0].Status)
	assert.Equal(t, models.StepStatusFailure, run.Steps[1].Status)
}

func TestHTTPCheck_MissingURL(t *testing.T) {
	run, err := runCheck(t, nil, HTTPCheckParams{})
	require.Error(t, err)

	assert.Equal(t, models.RunStatusTerminated, run.Status)
	assert.Empty(t, run.Steps)
}

func TestHTTPCheck_InvalidStepOptions(t *testing.T) {
	manager := newTestManager(t, `
steps:
  http-check:
    fetch:
      retries:
        backoff: quadratic
`)

	run, err := runCheck(t, manager, HTTPCheckParams{URL: "http://127.0.0.1:1"})
	require.Error(t, err)

	assert.Equal(t, models.RunStatusTerminated, run.Status)
	assert.Contains(t, err.Error(), "invalid options for step http-check/fetch")
}

func TestHTTPCheck_TemplatedURL(t *testing.T) {
	var hits atomic.Int32
	server := statusServer(t, &hits, http.StatusOK)

	t.Setenv("STEPFLOW_CHECK_TARGET", server.URL)

	run, err := runCheck(t, nil, HTTPCheckParams{URL: "{{ .env.STEPFLOW_CHECK_TARGET }}/health"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, int32(1), hits.Load())
}
