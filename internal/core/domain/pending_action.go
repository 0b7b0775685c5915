package domain

import (
	"encoding/json"
	"time"
)

// PendingAction is a write that has not been confirmed by the server yet.
type PendingAction struct {
	ID         string          `json:"id"`
	Endpoint   string          `json:"endpoint"`
	Method     Method          `json:"method"`
	Body       json.RawMessage `json:"body,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// DrainResult reports the outcome of replaying the pending queue.
type DrainResult struct {
	Applied   []string        `json:"applied"`
	Remaining []PendingAction `json:"remaining"`
}
