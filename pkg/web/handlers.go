// Package web provides HTTP handlers for inspecting and triggering workflow runs.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		publisher:   publisher,
		validator:   validator,
	}
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	var req ListRunsRequest

	err := c.Bind().Query(&req)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	filter := persistence.RunFilter{
		WorkflowID: req.WorkflowID,
		Status:     models.RunStatus(req.Status),
		Limit:      req.Limit,
		Offset:     req.Offset,
	}
	if filter.Limit == 0 {
		filter.Limit = persistence.DefaultListLimit
	}

	runs, err := h.persistence.Runs(c.Context(), filter)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(ListRunsResponse{
		Runs: runs,
		Pagination: Pagination{
			Limit:  filter.Limit,
			Offset: filter.Offset,
		},
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.persistence.RunByID(c.Context(), c.Params("workflowId"), c.Params("eventId"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) DeleteRun(c fiber.Ctx) error {
	err := h.persistence.DeleteRun(c.Context(), c.Params("workflowId"), c.Params("eventId"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerWorkflow publishes a WorkflowTriggered event whose payload is the
// request body. The run happens asynchronously on a worker.
func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	payload := map[string]any{}

	if len(c.Body()) > 0 {
		err := c.Bind().JSON(&payload)
		if err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	event := events.NewWorkflowTriggered(c.Params("workflowId"), "api", payload)

	err := h.publisher.Publish(c.Context(), event.WorkflowID, event)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{
		WorkflowID: event.WorkflowID,
		EventID:    event.ID,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Stepflow API is healthy"
	httpStatus := http.StatusOK
	persistenceCheck := "ok"

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "Stepflow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		persistenceCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": persistenceCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
