package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Event is the input of one run.
type Event[T any] struct {
	Payload   T      `json:"payload"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// NewEvent wraps payload with a fresh id and the current time in milliseconds.
func NewEvent[T any](payload T) Event[T] {
	return Event[T]{
		Payload:   payload,
		ID:        "evt-" + uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// Env identifies a workflow and carries its environment.
type Env[TEnv any] struct {
	ID  string `json:"id"`
	Env TEnv   `json:"env"`
}
