package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/failure"
	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

type waits struct {
	durations []time.Duration
}

func (w *waits) sleep(_ context.Context, d time.Duration) error {
	w.durations = append(w.durations, d)

	return nil
}

func newTestStep(collector metrics.Collector, opts ...workflow.StepOption) (*workflow.Step, *waits) {
	recorded := &waits{}

	base := []workflow.StepOption{
		workflow.WithLogger(discard),
		workflow.WithSleeper(recorded.sleep),
	}
	if collector != nil {
		base = append(base, workflow.WithCollector(collector), workflow.WithRunIDs("wf-test", "evt-test"))
	}

	return workflow.NewStep(append(base, opts...)...), recorded
}

func onlyStep(t *testing.T, collector *metrics.Memory) models.StepRecord {
	t.Helper()

	run, ok := collector.Run("wf-test", "evt-test")
	require.True(t, ok)
	require.Len(t, run.Steps, 1)

	return run.Steps[0]
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	t.Parallel()

	collector := metrics.NewMemory()
	step, recorded := newTestStep(collector)
	calls := 0

	result, err := workflow.Do(t.Context(), step, "fetch", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 2, Delay: "0", Backoff: workflow.BackoffLinear},
		Timeout: "1 second",
	}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky upstream")
		}

		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{0}, recorded.durations)

	record := onlyStep(t, collector)
	assert.Equal(t, "fetch", record.Name)
	assert.Equal(t, step.ID(), record.StepID)
	assert.Equal(t, models.StepStatusSuccess, record.Status)
	assert.Equal(t, 2, record.Attempts)
	assert.Empty(t, record.Error)
	assert.False(t, record.EndTime.Before(record.StartTime))
}

func TestDo_TerminateIsNotRetried(t *testing.T) {
	t.Parallel()

	collector := metrics.NewMemory()
	step, recorded := newTestStep(collector)
	stop := failure.Terminate("stop")
	calls := 0

	_, err := workflow.Do(t.Context(), step, "halt", workflow.StepOptions{}, func(context.Context) (any, error) {
		calls++

		return nil, stop
	})

	require.Error(t, err)
	assert.Same(t, stop, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, recorded.durations)

	record := onlyStep(t, collector)
	assert.Equal(t, models.StepStatusFailure, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.Equal(t, "Terminated: stop", record.Error)
}

func TestDo_ExhaustsDefaultBudget(t *testing.T) {
	t.Parallel()

	collector := metrics.NewMemory()
	step, recorded := newTestStep(collector)
	cause := errors.New("still broken")
	calls := 0

	err := step.Do(t.Context(), "broken", workflow.StepOptions{}, func(context.Context) error {
		calls++

		return cause
	})

	require.Error(t, err)
	assert.Equal(t, "still broken", err.Error())
	assert.ErrorIs(t, err, cause)

	kind, ok := failure.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindStepFailure, kind)

	assert.Equal(t, workflow.DefaultRetryLimit, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, recorded.durations)

	record := onlyStep(t, collector)
	assert.Equal(t, models.StepStatusFailure, record.Status)
	assert.Equal(t, 3, record.Attempts)
	assert.Equal(t, "still broken", record.Error)
}

func TestDo_ExponentialBackoff(t *testing.T) {
	t.Parallel()

	step, recorded := newTestStep(nil)

	err := step.Do(t.Context(), "exp", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 4, Delay: 100, Backoff: workflow.BackoffExponential},
	}, func(context.Context) error {
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, recorded.durations)
}

func TestDo_TimeoutBoundsEachAttempt(t *testing.T) {
	t.Parallel()

	collector := metrics.NewMemory()
	step, _ := newTestStep(collector)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	started := time.Now()

	err := step.Do(t.Context(), "hang", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 1},
		Timeout: "1 second",
	}, func(context.Context) error {
		<-block

		return nil
	})

	elapsed := time.Since(started)

	require.Error(t, err)
	assert.Equal(t, "Step timeout", err.Error())
	assert.True(t, failure.IsTimeout(err))
	assert.ErrorIs(t, err, failure.ErrStepTimeout)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 2*time.Second)

	record := onlyStep(t, collector)
	assert.Equal(t, "Step timeout", record.Error)
	assert.Equal(t, 1, record.Attempts)
}

func TestDo_ZeroOrMalformedTimeoutFiresImmediately(t *testing.T) {
	t.Parallel()

	for _, timeout := range []any{"1 sec", "0", "200000 days", -5} {
		t.Run(fmt.Sprint(timeout), func(t *testing.T) {
			t.Parallel()

			step, _ := newTestStep(nil)
			block := make(chan struct{})
			t.Cleanup(func() { close(block) })

			ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
			defer cancel()

			err := step.Do(ctx, "hang", workflow.StepOptions{
				Retries: &workflow.RetryConfig{Limit: 1},
				Timeout: timeout,
			}, func(context.Context) error {
				<-block

				return nil
			})

			require.Error(t, err)
			assert.True(t, failure.IsTimeout(err))
			assert.False(t, failure.IsTerminate(err))
			assert.NoError(t, ctx.Err())
		})
	}
}

func TestDo_IntegerZeroTimeoutUsesDefault(t *testing.T) {
	t.Parallel()

	step, _ := newTestStep(nil)

	result, err := workflow.Do(t.Context(), step, "quick", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 1},
		Timeout: 0,
	}, func(context.Context) (string, error) {
		time.Sleep(20 * time.Millisecond)

		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestDo_WithoutTimeout(t *testing.T) {
	t.Parallel()

	step, _ := newTestStep(nil, workflow.WithoutTimeout())

	result, err := workflow.Do(t.Context(), step, "unbounded", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 1},
		Timeout: "0",
	}, func(context.Context) (int, error) {
		time.Sleep(20 * time.Millisecond)

		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestDo_TimeoutIsRetried(t *testing.T) {
	t.Parallel()

	step, _ := newTestStep(nil)
	var calls atomic.Int32

	result, err := workflow.Do(t.Context(), step, "slow-then-fast", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 3, Delay: 0},
		Timeout: 20,
	}, func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}

		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_AbandonedBodyIsNotCancelled(t *testing.T) {
	t.Parallel()

	step, _ := newTestStep(nil)
	observed := make(chan error, 1)

	err := step.Do(t.Context(), "abandon", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 1},
		Timeout: 10,
	}, func(ctx context.Context) error {
		time.Sleep(100 * time.Millisecond)
		observed <- ctx.Err()

		return nil
	})

	require.Error(t, err)
	assert.True(t, failure.IsTimeout(err))
	assert.NoError(t, <-observed)
}

func TestDo_CancelOnTimeout(t *testing.T) {
	t.Parallel()

	step, _ := newTestStep(nil, workflow.WithCancelOnTimeout(true))
	observed := make(chan error, 1)

	err := step.Do(t.Context(), "cooperative", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 1},
		Timeout: 10,
	}, func(ctx context.Context) error {
		<-ctx.Done()
		observed <- ctx.Err()

		return ctx.Err()
	})

	require.Error(t, err)
	assert.True(t, failure.IsTimeout(err))
	assert.ErrorIs(t, <-observed, context.Canceled)
}

func TestDo_PanicBecomesStepFailure(t *testing.T) {
	t.Parallel()

	step, _ := newTestStep(nil)

	err := step.Do(t.Context(), "panics", workflow.StepOptions{
		Retries: &workflow.RetryConfig{Limit: 2},
	}, func(context.Context) error {
		panic("kaboom")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	kind, ok := failure.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindStepFailure, kind)
}

func TestDo_ParentCancellationTerminates(t *testing.T) {
	t.Parallel()

	step, _ := newTestStep(nil)
	ctx, cancel := context.WithCancel(t.Context())

	err := step.Do(ctx, "cancelled", workflow.StepOptions{}, func(context.Context) error {
		cancel()
		time.Sleep(50 * time.Millisecond)

		return nil
	})

	require.Error(t, err)
	assert.True(t, failure.IsTerminate(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_StandaloneWithoutCollector(t *testing.T) {
	t.Parallel()

	step := workflow.NewStep(workflow.WithLogger(discard))

	result, err := workflow.Do(t.Context(), step, "standalone", workflow.StepOptions{}, func(context.Context) (string, error) {
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestDo_NoRecordWithoutRunIDs(t *testing.T) {
	t.Parallel()

	collector := metrics.NewMemory()
	step := workflow.NewStep(workflow.WithLogger(discard), workflow.WithCollector(collector))

	require.NoError(t, step.Do(t.Context(), "quiet", workflow.StepOptions{}, func(context.Context) error {
		return nil
	}))

	assert.Empty(t, collector.Runs())
}

func TestStep_Sleep(t *testing.T) {
	t.Parallel()

	step, recorded := newTestStep(nil)

	require.NoError(t, step.Sleep(t.Context(), "pacing", "2 minutes"))
	require.NoError(t, step.Sleep(t.Context(), "raw", 250))
	require.NoError(t, step.Sleep(t.Context(), "bad", "soon"))

	assert.Equal(t, []time.Duration{2 * time.Minute, 250 * time.Millisecond, 0}, recorded.durations)
}

func TestStep_SleepHonorsContext(t *testing.T) {
	t.Parallel()

	step := workflow.NewStep(workflow.WithLogger(discard))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := step.Sleep(ctx, "cancelled", "1 hour")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStep_CustomID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "local-step-execution", workflow.NewStep(workflow.WithStepID("local-step-execution")).ID())
	assert.Regexp(t, `^step-[0-9a-f]{8}$`, workflow.NewStep().ID())
}
