package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukex/stepflow/pkg/config"
	"github.com/dukex/stepflow/pkg/failure"
	"github.com/dukex/stepflow/pkg/template"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/gofiber/fiber/v3/client"
)

const HTTPCheckWorkflowID = "http-check"

// HTTPCheckParams is the trigger payload of the http-check workflow.
type HTTPCheckParams struct {
	URL            string `json:"url"`
	ExpectedStatus int    `json:"expected_status,omitempty"`
	Wait           any    `json:"wait,omitempty"`
}

type HTTPCheckEnv struct {
	Client *client.Client
	Config *config.Manager
}

var httpCheckSchema = map[string]any{
	"type":     "object",
	"required": []any{"url"},
	"properties": map[string]any{
		"url":             map[string]any{"type": "string", "minLength": 1},
		"expected_status": map[string]any{"type": "integer", "minimum": 100, "maximum": 599},
	},
}

// NewHTTPCheck builds the bundled workflow that fetches a URL, optionally
// waits, and verifies the response status. URLs containing template actions
// are rendered first. Client errors terminate the run; server errors and
// transport failures are retried per the "fetch" step options found in
// configuration.
func NewHTTPCheck(env HTTPCheckEnv, opts ...workflow.Option) *workflow.Entrypoint[HTTPCheckEnv, HTTPCheckParams] {
	e := workflow.Env[HTTPCheckEnv]{ID: HTTPCheckWorkflowID, Env: env}

	var runner workflow.RunnerFunc[HTTPCheckParams] = func(ctx context.Context, event workflow.Event[HTTPCheckParams], step *workflow.Step) error {
		return runHTTPCheck(ctx, env, event, step)
	}

	return workflow.NewEntrypoint(e, runner, opts...)
}

func stepOptions(ctx context.Context, manager *config.Manager, name string) (workflow.StepOptions, error) {
	if manager == nil {
		return workflow.StepOptions{}, nil
	}

	return manager.StepOptions(ctx, HTTPCheckWorkflowID, name)
}

func runHTTPCheck(ctx context.Context, env HTTPCheckEnv, event workflow.Event[HTTPCheckParams], step *workflow.Step) error {
	params := event.Payload
	if params.URL == "" {
		return failure.Terminate("url is required")
	}

	url := params.URL
	if template.NeedsRendering(url) {
		rendered, err := template.Render(url, template.RunData(HTTPCheckWorkflowID, event.ID, params))
		if err != nil {
			return failure.TerminateWith(err)
		}

		url = rendered
	}

	expected := params.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}

	fetchOptions, err := stepOptions(ctx, env.Config, "fetch")
	if err != nil {
		return failure.TerminateWith(err)
	}

	status, err := workflow.Do(ctx, step, "fetch", fetchOptions, func(ctx context.Context) (int, error) {
		return fetchStatus(ctx, env.Client, url)
	})
	if err != nil {
		return err
	}

	if params.Wait != nil {
		err = step.Sleep(ctx, "wait before verify", params.Wait)
		if err != nil {
			return failure.TerminateWith(err)
		}
	}

	return step.Do(ctx, "verify", workflow.StepOptions{Retries: &workflow.RetryConfig{Limit: 1}}, func(context.Context) error {
		if status != expected {
			return failure.Terminate(fmt.Sprintf("expected status %d, got %d", expected, status))
		}

		return nil
	})
}

func fetchStatus(ctx context.Context, cc *client.Client, url string) (int, error) {
	if cc == nil {
		cc = client.New()
	}

	resp, err := cc.Get(url, client.Config{Ctx: ctx})
	if err != nil {
		return 0, err
	}
	defer resp.Close()

	status := resp.StatusCode()

	switch {
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return status, fmt.Errorf("unexpected status: %d", status)
	case status >= http.StatusBadRequest:
		return status, failure.Terminate(fmt.Sprintf("client error: %d", status))
	}

	return status, nil
}
