// Package main provides the stepflow worker, which executes workflow runs
// requested through the event bus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/schedule"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/gofiber/fiber/v3/client"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	command := &cli.Command{
		Name:                  "stepflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Execute workflow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Run store URL (file path, postgres:// or redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML file with step options",
				Sources: cli.EnvVars("STEP_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "config-redis-url",
				Usage:   "Redis URL whose stepflow:config hash holds step options",
				Sources: cli.EnvVars("CONFIG_REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron spec that triggers --schedule-workflow",
				Sources: cli.EnvVars("SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "schedule-workflow",
				Usage:   "Workflow triggered by --schedule",
				Value:   HTTPCheckWorkflowID,
				Sources: cli.EnvVars("SCHEDULE_WORKFLOW"),
			},
			&cli.StringFlag{
				Name:    "schedule-payload",
				Usage:   "JSON payload sent with scheduled triggers",
				Sources: cli.EnvVars("SCHEDULE_PAYLOAD"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export run and step spans over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("stepflow-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing stepflow worker")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "stepflow-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := store.Close(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	manager, err := cmd.NewConfigManager(ctx, logger, command.String("config"), command.String("config-redis-url"))
	if err != nil {
		return err
	}

	var tracer trace.Tracer

	if command.Bool("otel") {
		provider, err := otelhelper.NewTracerProvider(ctx, "stepflow-worker")
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}

		defer func() {
			err := provider.Shutdown(context.WithoutCancel(ctx))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
			}
		}()

		tracer = provider.Tracer("stepflow-worker")
	}

	collector := NewCollector(workerID, store, eventBus, tracer, logger)

	workflows := registry.NewRegistry(logger)

	err = workflows.Register(registry.Definition{
		Dispatcher: NewHTTPCheck(
			HTTPCheckEnv{Client: client.New(), Config: manager},
			workflow.WithMetricsCollector(collector),
			workflow.WithEntrypointLogger(logger),
		),
		Description: "Fetch a URL and verify its response status",
		Schema:      httpCheckSchema,
	})
	if err != nil {
		return err
	}

	var scheduler *schedule.Scheduler

	if spec := command.String("schedule"); spec != "" {
		scheduler = schedule.NewScheduler(eventBus, logger)

		var payload map[string]any

		if raw := command.String("schedule-payload"); raw != "" {
			err := json.Unmarshal([]byte(raw), &payload)
			if err != nil {
				return fmt.Errorf("invalid schedule payload: %w", err)
			}
		}

		_, err := scheduler.Add(spec, command.String("schedule-workflow"), payload)
		if err != nil {
			return err
		}
	}

	worker := NewWorker(workerID, eventBus, workflows, scheduler, logger)

	err = worker.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()

	return worker.Stop(context.WithoutCancel(ctx))
}
