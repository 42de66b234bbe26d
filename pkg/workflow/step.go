package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/delay"
	"github.com/dukex/stepflow/pkg/failure"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/retry"
	"github.com/google/uuid"
)

// Step drives the steps of a single run. It holds no state across runs.
//
// Each attempt races the step body against the step timeout. When the timer
// wins the body is abandoned, not stopped: it keeps running in its goroutine
// and its side effects are not rolled back. Bodies that are not idempotent
// should watch their context and the step should be built with
// WithCancelOnTimeout(true), which cancels the attempt context when the timer
// fires. Cancellation is cooperative only.
type Step struct {
	id              string
	workflowID      string
	eventID         string
	collector       metrics.Collector
	logger          *slog.Logger
	cancelOnTimeout bool
	unbounded       bool
	jitter          float64
	sleep           retry.Sleeper
	now             func() time.Time
}

type StepOption func(*Step)

func WithCollector(collector metrics.Collector) StepOption {
	return func(s *Step) {
		s.collector = collector
	}
}

// WithRunIDs binds the step to the run it reports metrics for.
func WithRunIDs(workflowID, eventID string) StepOption {
	return func(s *Step) {
		s.workflowID = workflowID
		s.eventID = eventID
	}
}

func WithStepID(id string) StepOption {
	return func(s *Step) {
		s.id = id
	}
}

func WithLogger(logger *slog.Logger) StepOption {
	return func(s *Step) {
		s.logger = logger
	}
}

// WithCancelOnTimeout cancels the context passed to a step body once its
// attempt has timed out.
func WithCancelOnTimeout(cancel bool) StepOption {
	return func(s *Step) {
		s.cancelOnTimeout = cancel
	}
}

// WithoutTimeout runs every attempt without a timer, ignoring
// StepOptions.Timeout. A body that never returns then blocks until its
// context is done.
func WithoutTimeout() StepOption {
	return func(s *Step) {
		s.unbounded = true
	}
}

// WithJitter randomizes retry waits, see retry.Options.Jitter.
func WithJitter(jitter float64) StepOption {
	return func(s *Step) {
		s.jitter = jitter
	}
}

// WithSleeper replaces the timer used for retry waits and Sleep.
func WithSleeper(sleep retry.Sleeper) StepOption {
	return func(s *Step) {
		s.sleep = sleep
	}
}

func NewStep(opts ...StepOption) *Step {
	step := &Step{
		id:     "step-" + uuid.New().String()[:8],
		logger: log.WithModule("workflow_step"),
		sleep:  retry.Sleep,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(step)
	}

	return step
}

func (s *Step) ID() string {
	return s.id
}

// Do runs fn as the named step, retrying it according to opts. It returns
// fn's result, or the terminal or final step failure.
func Do[T any](ctx context.Context, s *Step, name string, opts StepOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	startTime := s.now()
	logger := s.logger.With("step", name, "step_id", s.id)

	bodyCtx := log.WithLogger(ctx, logger)

	retryOptions, timeout := opts.resolve(bodyCtx)
	retryOptions.Jitter = s.jitter
	retryOptions.Sleep = s.sleep
	retryOptions.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.WarnContext(ctx, "Step attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", retryOptions.MaxRetries,
			"error", err,
			"wait", wait,
		)
	}

	outcome := retry.WithStats(bodyCtx, func(ctx context.Context) (T, error) {
		result, err := race(ctx, timeout, !s.unbounded, s.cancelOnTimeout, fn)
		if err != nil {
			return result, failure.Step(err)
		}

		return result, nil
	}, retryOptions)

	s.record(ctx, name, startTime, outcome.Success, outcome.Attempts, outcome.Err)

	if !outcome.Success {
		var zero T

		if failure.IsTerminate(outcome.Err) {
			logger.ErrorContext(ctx, "Step terminated", "error", outcome.Err, "attempts", outcome.Attempts)
		} else {
			logger.ErrorContext(ctx, "Step failed", "error", outcome.Err, "attempts", outcome.Attempts)
		}

		return zero, outcome.Err
	}

	logger.InfoContext(ctx, "Step completed successfully",
		"attempts", outcome.Attempts,
		"duration_ms", s.now().Sub(startTime).Milliseconds(),
	)

	return outcome.Result, nil
}

// Do runs a step that produces no result.
func (s *Step) Do(ctx context.Context, name string, opts StepOptions, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, s, name, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// Sleep pauses the run for duration, parsed by delay.Parse. It is not retried
// and has no timeout.
func (s *Step) Sleep(ctx context.Context, reason string, duration any) error {
	wait := delay.ParseContext(log.WithLogger(ctx, s.logger), duration)

	s.logger.InfoContext(ctx, "Sleeping", "reason", reason, "duration_ms", wait.Milliseconds(), "step_id", s.id)

	return s.sleep(ctx, wait)
}

func (s *Step) record(ctx context.Context, name string, startTime time.Time, success bool, attempts int, err error) {
	if s.collector == nil || s.workflowID == "" || s.eventID == "" {
		return
	}

	record := models.StepRecord{
		StepID:    s.id,
		Name:      name,
		StartTime: startTime,
		EndTime:   s.now(),
		Status:    models.StepStatusSuccess,
		Attempts:  attempts,
	}

	if !success {
		record.Status = models.StepStatusFailure

		if err != nil {
			record.Error = err.Error()
			if failure.IsTerminate(err) {
				record.Error = "Terminated: " + err.Error()
			}
		}
	}

	s.collector.RecordStep(context.WithoutCancel(ctx), s.workflowID, s.eventID, record)
}

type settled[T any] struct {
	result T
	err    error
}

// race runs fn against a timer of the given length; whichever settles first
// wins. A non-positive timeout fires at once. Without bounded there is no timer.
func race[T any](ctx context.Context, timeout time.Duration, bounded, cancelOnTimeout bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	bodyCtx, cancel := ctx, context.CancelFunc(func() {})
	if cancelOnTimeout {
		bodyCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan settled[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- settled[T]{err: fmt.Errorf("step panicked: %v", r)}
			}
		}()

		result, err := fn(bodyCtx)
		done <- settled[T]{result: result, err: err}
	}()

	var timer <-chan time.Time

	if bounded {
		t := time.NewTimer(max(timeout, 0))
		defer t.Stop()

		timer = t.C
	}

	select {
	case outcome := <-done:
		return outcome.result, outcome.err
	case <-timer:
		return zero, failure.Timeout()
	case <-ctx.Done():
		return zero, failure.TerminateWith(ctx.Err())
	}
}
