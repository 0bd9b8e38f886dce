package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by the Queue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// StatusEntry is the queue's view of one task's lifecycle. The status table
// is in-memory and independent of the durable sheet store: it tracks the
// execution of queue items, not domain state.
type StatusEntry struct {
	TaskID     uuid.UUID `json:"task_id"`
	Kind       string    `json:"kind"`
	Status     Status    `json:"status"`
	Result     []byte    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Queue is a buffered FIFO task queue with per-task status tracking.
// Producers enqueue without blocking: when the buffer is full, Enqueue fails
// with ErrQueueFull rather than waiting. Tasks are delivered to consumers in
// enqueue order; completion order is not guaranteed since each task runs
// independently.
type Queue struct {
	tasks    chan Task
	mu       sync.RWMutex
	statuses map[uuid.UUID]StatusEntry
	closed   bool
	logger   *slog.Logger
}

// NewQueue creates a new task queue with the specified buffer size.
func NewQueue(size int, logger *slog.Logger) *Queue {
	return &Queue{
		tasks:    make(chan Task, size),
		statuses: make(map[uuid.UUID]StatusEntry),
		logger:   logger,
	}
}

// Enqueue adds a task to the queue for processing and records it as pending.
// Returns an error if the queue is full or closed.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		now := time.Now().UTC()
		q.statuses[task.ID()] = StatusEntry{
			TaskID:     task.ID(),
			Kind:       task.Kind(),
			Status:     StatusPending,
			EnqueuedAt: now,
			UpdatedAt:  now,
		}
		q.logger.Debug("task enqueued",
			"task_id", task.ID(),
			"task_kind", task.Kind(),
			"queue_len", len(q.tasks),
			"queue_cap", cap(q.tasks))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Close closes the task queue, preventing further task submission.
// Already-queued tasks can still be consumed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
		q.logger.Info("task queue closed")
	}
}

// Chan returns a read-only channel for consuming tasks in FIFO order.
func (q *Queue) Chan() <-chan Task {
	return q.tasks
}

// Status reports the queue's view of the given task. A task ID that was
// never enqueued on this instance reports StatusUnknown.
func (q *Queue) Status(taskID uuid.UUID) StatusEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if entry, ok := q.statuses[taskID]; ok {
		return entry
	}
	return StatusEntry{TaskID: taskID, Status: StatusUnknown}
}

// AllStatuses returns a snapshot of every tracked task status, for
// observability.
func (q *Queue) AllStatuses() map[uuid.UUID]StatusEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make(map[uuid.UUID]StatusEntry, len(q.statuses))
	for id, entry := range q.statuses {
		out[id] = entry
	}
	return out
}

// HasUnfinished reports whether any tracked task is still pending or
// processing.
func (q *Queue) HasUnfinished() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, entry := range q.statuses {
		if entry.Status == StatusPending || entry.Status == StatusProcessing {
			return true
		}
	}
	return false
}

func (q *Queue) markProcessing(taskID uuid.UUID) {
	q.setStatus(taskID, func(entry *StatusEntry) {
		entry.Status = StatusProcessing
	})
}

func (q *Queue) markCompleted(taskID uuid.UUID, result []byte) {
	q.setStatus(taskID, func(entry *StatusEntry) {
		entry.Status = StatusCompleted
		entry.Result = result
	})
}

func (q *Queue) markFailed(taskID uuid.UUID, errMsg string) {
	q.setStatus(taskID, func(entry *StatusEntry) {
		entry.Status = StatusFailed
		entry.Error = errMsg
	})
}

func (q *Queue) setStatus(taskID uuid.UUID, update func(*StatusEntry)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.statuses[taskID]
	if !ok {
		// A worker reported on a task this queue never issued.
		q.logger.Warn("status update for unknown task", "task_id", taskID)
		return
	}

	update(&entry)
	entry.UpdatedAt = time.Now().UTC()
	q.statuses[taskID] = entry
}
