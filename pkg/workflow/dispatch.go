package workflow

import (
	"context"
	"encoding/json"
	"fmt"
)

// ID returns the workflow id this entrypoint executes.
func (e *Entrypoint[TEnv, TParams]) ID() string {
	return e.env.ID
}

// ExecuteJSON decodes payload into the entrypoint's parameter type and
// executes a run for it. It lets untyped transports drive typed workflows.
func (e *Entrypoint[TEnv, TParams]) ExecuteJSON(ctx context.Context, eventID string, timestamp int64, payload []byte) error {
	var params TParams

	if len(payload) > 0 {
		err := json.Unmarshal(payload, &params)
		if err != nil {
			return fmt.Errorf("failed to decode payload for workflow %s: %w", e.env.ID, err)
		}
	}

	return e.Execute(ctx, Event[TParams]{
		Payload:   params,
		ID:        eventID,
		Timestamp: timestamp,
	})
}
