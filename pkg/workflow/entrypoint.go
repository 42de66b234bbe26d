package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/failure"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/metrics"
)

// Runner holds the logic of a workflow.
type Runner[TParams any] interface {
	Run(ctx context.Context, event Event[TParams], step *Step) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc[TParams any] func(ctx context.Context, event Event[TParams], step *Step) error

func (f RunnerFunc[TParams]) Run(ctx context.Context, event Event[TParams], step *Step) error {
	return f(ctx, event, step)
}

type entrypointConfig struct {
	collector   metrics.Collector
	logger      *slog.Logger
	stepOptions []StepOption
}

type Option func(*entrypointConfig)

// WithMetricsCollector replaces the in-memory collector owned by the entrypoint.
func WithMetricsCollector(collector metrics.Collector) Option {
	return func(c *entrypointConfig) {
		c.collector = collector
	}
}

func WithEntrypointLogger(logger *slog.Logger) Option {
	return func(c *entrypointConfig) {
		c.logger = logger
	}
}

// WithStepOptions applies opts to the Step built for every run.
func WithStepOptions(opts ...StepOption) Option {
	return func(c *entrypointConfig) {
		c.stepOptions = append(c.stepOptions, opts...)
	}
}

// Entrypoint executes runs of one workflow. It owns a single metrics
// collector for its whole lifetime and builds a fresh Step for every run.
type Entrypoint[TEnv, TParams any] struct {
	env         Env[TEnv]
	runner      Runner[TParams]
	collector   metrics.Collector
	logger      *slog.Logger
	stepOptions []StepOption
}

func NewEntrypoint[TEnv, TParams any](env Env[TEnv], runner Runner[TParams], opts ...Option) *Entrypoint[TEnv, TParams] {
	config := entrypointConfig{}
	for _, opt := range opts {
		opt(&config)
	}

	if config.collector == nil {
		config.collector = metrics.NewMemory()
	}

	if config.logger == nil {
		config.logger = log.WithModule("workflow")
	}

	return &Entrypoint[TEnv, TParams]{
		env:         env,
		runner:      runner,
		collector:   config.collector,
		logger:      config.logger.With("workflow_id", env.ID),
		stepOptions: config.stepOptions,
	}
}

func (e *Entrypoint[TEnv, TParams]) Env() Env[TEnv] {
	return e.env
}

func (e *Entrypoint[TEnv, TParams]) Collector() metrics.Collector {
	return e.collector
}

// Execute performs one run. Errors returned by the runner are reported to
// the collector and returned unchanged; runs are never retried.
func (e *Entrypoint[TEnv, TParams]) Execute(ctx context.Context, event Event[TParams]) error {
	logger := e.logger.With("event_id", event.ID)
	metricsCtx := context.WithoutCancel(ctx)
	startTime := time.Now()

	e.collector.StartWorkflow(metricsCtx, e.env.ID, event.ID)

	stepOptions := append([]StepOption{
		WithCollector(e.collector),
		WithRunIDs(e.env.ID, event.ID),
		WithLogger(logger.With("module", "workflow_step")),
	}, e.stepOptions...)
	step := NewStep(stepOptions...)

	logger.InfoContext(ctx, "Starting workflow run")

	err := e.run(ctx, event, step)
	if err != nil {
		e.collector.EndWorkflow(metricsCtx, e.env.ID, event.ID, err)

		if failure.IsTerminate(err) {
			logger.WarnContext(ctx, "Workflow terminated", "error", err)
		} else {
			logger.ErrorContext(ctx, "Workflow failed", "error", err)
		}

		return err
	}

	e.collector.EndWorkflow(metricsCtx, e.env.ID, event.ID, nil)
	logger.InfoContext(ctx, "Workflow run completed", "duration_ms", time.Since(startTime).Milliseconds())

	return nil
}

func (e *Entrypoint[TEnv, TParams]) run(ctx context.Context, event Event[TParams], step *Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow %s panicked: %v", e.env.ID, r)
		}
	}()

	return e.runner.Run(ctx, event, step)
}
