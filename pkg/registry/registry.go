// Package registry maps workflow ids to runnable workflows so untyped
// trigger events can start typed runs.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownWorkflow = errors.New("workflow not registered")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrDuplicate       = errors.New("workflow already registered")
)

// Dispatcher runs a workflow from a JSON payload. *workflow.Entrypoint
// implements it for every parameter type.
type Dispatcher interface {
	ID() string
	ExecuteJSON(ctx context.Context, eventID string, timestamp int64, payload []byte) error
}

// Definition describes a registered workflow. Schema is an optional JSON
// schema the trigger payload must satisfy.
type Definition struct {
	Dispatcher  Dispatcher
	Description string
	Schema      map[string]any
}

type Registry struct {
	logger *slog.Logger

	mu          sync.RWMutex
	definitions map[string]Definition
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:      logger.With("module", "registry"),
		definitions: make(map[string]Definition),
	}
}

func (r *Registry) Register(definition Definition) error {
	if definition.Dispatcher == nil {
		return errors.New("definition has no dispatcher")
	}

	id := definition.Dispatcher.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	r.definitions[id] = definition

	return nil
}

func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definition, ok := r.definitions[id]

	return definition, ok
}

// IDs returns the registered workflow ids in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Dispatch validates the trigger payload and executes one run of the
// triggered workflow, using the event's id as the run's event id. It
// returns the run's error.
func (r *Registry) Dispatch(ctx context.Context, event *events.WorkflowTriggered) error {
	definition, ok := r.Get(event.WorkflowID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, event.WorkflowID)
	}

	data := event.TriggerData
	if data == nil {
		data = map[string]any{}
	}

	if definition.Schema != nil {
		err := validateJSONSchema(data, definition.Schema)
		if err != nil {
			return fmt.Errorf("%w for workflow %s: %w", ErrInvalidPayload, event.WorkflowID, err)
		}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w for workflow %s: %w", ErrInvalidPayload, event.WorkflowID, err)
	}

	return definition.Dispatcher.ExecuteJSON(ctx, event.ID, event.Timestamp.UnixMilli(), payload)
}

// Handler adapts Dispatch to the event bus. Every trigger is acknowledged:
// run failures are already reported through the run's collector, and
// redelivering a trigger would start a duplicate run.
func (r *Registry) Handler() eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		triggered, ok := event.(*events.WorkflowTriggered)
		if !ok {
			r.logger.WarnContext(ctx, "Ignoring unexpected event", "event", fmt.Sprintf("%T", event))

			return nil
		}

		logger := r.logger.With("workflow_id", triggered.WorkflowID, "event_id", triggered.ID)

		err := r.Dispatch(ctx, triggered)
		switch {
		case err == nil:
			logger.InfoContext(ctx, "Triggered run completed")
		case errors.Is(err, ErrUnknownWorkflow), errors.Is(err, ErrInvalidPayload):
			logger.WarnContext(ctx, "Rejected trigger", "error", err)
		default:
			logger.ErrorContext(ctx, "Triggered run failed", "error", err)
		}

		return nil
	}
}

// validateJSONSchema validates data against the provided JSON schema.
func validateJSONSchema(data map[string]any, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}

	return nil
}
