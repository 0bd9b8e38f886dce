package task

import (
	"context"

	"github.com/google/uuid"
)

// Status represents the current state of a task as tracked by the queue.
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"

	// StatusUnknown is reported for task IDs that were never enqueued on
	// this queue instance.
	StatusUnknown Status = "unknown"
)

// Task kind constants
const (
	// KindGrading represents the task kind for grading a recognized sheet.
	KindGrading = "grading"
)

// Task represents a unit of background work to be processed.
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Kind returns the task kind identifier
	Kind() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Execute runs the task logic and returns a result payload on success.
	Execute(ctx context.Context) ([]byte, error)
}
