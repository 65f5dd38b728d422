// Package checkpoint provides durable storage for workflow thread state.
//
// Records hold the serialized workflow state and any pending interrupt as
// opaque JSON so the store stays decoupled from the workflow types. A thread
// has at most one record; Put replaces the previous checkpoint atomically.
package checkpoint

import (
	"context"
	"encoding/json"
	"time"
)

// Thread status values persisted alongside each checkpoint.
const (
	StatusRunning   = "running"
	StatusSuspended = "suspended"
	StatusDone      = "done"
)

// Record is one durable snapshot of a workflow thread.
type Record struct {
	ThreadID  string          `json:"thread_id"`
	State     json.RawMessage `json:"state"`
	Interrupt json.RawMessage `json:"interrupt,omitempty"`
	Status    string          `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists per-thread checkpoints.
type Store interface {
	// Get returns the latest checkpoint for a thread, or nil when the
	// thread has never been checkpointed.
	Get(ctx context.Context, threadID string) (*Record, error)

	// Put replaces the checkpoint for a thread.
	Put(ctx context.Context, rec *Record) error

	// Close releases any underlying resources.
	Close() error
}
