package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aveledo/examflow/internal/events"
)

// Dispatcher creates grading tasks and hands them to the queue. It also
// implements events.EventHandler so the ingestion pipeline can request
// grading without depending on this package.
//
// Dispatching is expected at most once per completed recognition. That is a
// documented caller precondition, not enforced here: a double dispatch
// produces a second task for the same sheet.
type Dispatcher struct {
	queue       *Queue
	sheets      SheetStore
	grader      Grader
	retryPolicy RetryPolicy
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher. The retry policy is applied to every
// grading task it creates.
func NewDispatcher(
	queue *Queue,
	sheets SheetStore,
	grader Grader,
	retryPolicy RetryPolicy,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	if sheets == nil {
		return nil, ErrNilSheetStore
	}
	if grader == nil {
		return nil, ErrNilGrader
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &Dispatcher{
		queue:       queue,
		sheets:      sheets,
		grader:      grader,
		retryPolicy: retryPolicy,
		logger:      logger.With("component", "grading_dispatcher"),
	}, nil
}

// Dispatch creates a grading task for the given sheet and enqueues it,
// returning the task ID.
func (d *Dispatcher) Dispatch(ctx context.Context, sheetID uuid.UUID) (uuid.UUID, error) {
	gradingTask, err := NewGradingTask(
		sheetID,
		0,
		d.sheets,
		d.grader,
		NewRetrier(d.retryPolicy, d.logger),
		d.logger,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create grading task: %w", err)
	}

	if err := d.queue.Enqueue(gradingTask); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue grading task: %w", err)
	}

	d.logger.Info("grading task dispatched",
		"task_id", gradingTask.ID(),
		"sheet_id", sheetID)
	return gradingTask.ID(), nil
}

// HandleEvent processes grading request events by dispatching a grading
// task for the referenced sheet. Events of other kinds are ignored.
func (d *Dispatcher) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Kind != KindGrading {
		d.logger.Debug("ignoring event with unsupported kind",
			"event_kind", event.Kind,
			"event_id", event.ID)
		return nil
	}

	var payload gradingPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal grading event payload: %w", err)
	}

	if _, err := d.Dispatch(ctx, payload.SheetID); err != nil {
		return err
	}
	return nil
}

// Recover re-dispatches grading for sheets whose recognition completed but
// whose grading never finished, e.g. after a crash or restart. Individual
// dispatch failures are logged and skipped so one bad sheet does not block
// the rest.
func (d *Dispatcher) Recover(ctx context.Context) error {
	sheets, err := d.sheets.ListAwaitingGrading(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sheets awaiting grading: %w", err)
	}

	if len(sheets) == 0 {
		return nil
	}

	d.logger.Info("re-dispatching unfinished grading work", "sheet_count", len(sheets))

	for _, sheet := range sheets {
		if _, err := d.Dispatch(ctx, sheet.ID); err != nil {
			d.logger.Error("failed to re-dispatch grading task",
				"sheet_id", sheet.ID,
				"error", err)
		}
	}

	return nil
}

// Ensure Dispatcher implements events.EventHandler
var _ events.EventHandler = (*Dispatcher)(nil)
