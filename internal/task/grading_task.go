package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aveledo/examflow/internal/domain"
)

// Common errors
var (
	ErrNilSheetStore = errors.New("sheet store cannot be nil")
	ErrNilGrader     = errors.New("grader cannot be nil")
	ErrNilRetrier    = errors.New("retrier cannot be nil")
	ErrNilLogger     = errors.New("logger cannot be nil")
	ErrNilQueue      = errors.New("queue cannot be nil")
	ErrEmptySheetID  = errors.New("sheet ID cannot be empty")
)

// SheetStore defines the sheet persistence operations the task package
// needs. The full store interface lives in internal/store; this narrower
// copy keeps the dependency direction clean.
type SheetStore interface {
	// GetByID retrieves a sheet by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Sheet, error)

	// Update persists changes to a sheet.
	Update(ctx context.Context, sheet *domain.Sheet) error

	// ListAwaitingGrading retrieves recognized sheets whose grading has not
	// finished.
	ListAwaitingGrading(ctx context.Context) ([]*domain.Sheet, error)
}

// Grader defines the interface for the grading computation.
type Grader interface {
	// Grade scores the recognized answers on the given sheet.
	Grade(ctx context.Context, sheet *domain.Sheet) (*domain.GradingOutcome, error)
}

// gradingPayload represents the serialized data carried by the task.
type gradingPayload struct {
	SheetID uuid.UUID `json:"sheet_id"`
}

// gradingResult is the result payload recorded on the queue when the task
// completes.
type gradingResult struct {
	SheetID  uuid.UUID `json:"sheet_id"`
	Score    float64   `json:"score"`
	MaxScore float64   `json:"max_score"`
	Attempts int       `json:"attempts"`
}

// GradingTask grades one recognized sheet. The task itself is immutable
// after dispatch; the grading outcome is recorded on the sheet, and the
// execution status on the queue's status table.
type GradingTask struct {
	id        uuid.UUID
	sheetID   uuid.UUID
	priority  int
	createdAt time.Time
	sheets    SheetStore
	grader    Grader
	retrier   *Retrier
	logger    *slog.Logger
}

// NewGradingTask creates a grading task for the given sheet. Priority is
// advisory metadata only; the FIFO queue does not reorder by it.
func NewGradingTask(
	sheetID uuid.UUID,
	priority int,
	sheets SheetStore,
	grader Grader,
	retrier *Retrier,
	logger *slog.Logger,
) (*GradingTask, error) {
	if sheets == nil {
		return nil, ErrNilSheetStore
	}
	if grader == nil {
		return nil, ErrNilGrader
	}
	if retrier == nil {
		return nil, ErrNilRetrier
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if sheetID == uuid.Nil {
		return nil, ErrEmptySheetID
	}

	return &GradingTask{
		id:        uuid.New(),
		sheetID:   sheetID,
		priority:  priority,
		createdAt: time.Now().UTC(),
		sheets:    sheets,
		grader:    grader,
		retrier:   retrier,
		logger:    logger.With("task_kind", KindGrading, "sheet_id", sheetID),
	}, nil
}

// ID returns the task's unique identifier
func (t *GradingTask) ID() uuid.UUID {
	return t.id
}

// Kind returns the task kind identifier
func (t *GradingTask) Kind() string {
	return KindGrading
}

// Priority returns the task's advisory priority.
func (t *GradingTask) Priority() int {
	return t.priority
}

// CreatedAt returns the task's creation time.
func (t *GradingTask) CreatedAt() time.Time {
	return t.createdAt
}

// Payload returns the task data as a byte slice
func (t *GradingTask) Payload() []byte {
	data, err := json.Marshal(gradingPayload{SheetID: t.sheetID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Execute runs the grading task: it loads the sheet, verifies that
// recognition completed, marks grading as processing, and runs the grading
// computation under the retry policy. A terminal failure is surfaced on the
// sheet's grading status with the last error message retained.
func (t *GradingTask) Execute(ctx context.Context) ([]byte, error) {
	t.logger.Info("starting grading task")

	sheet, err := t.sheets.GetByID(ctx, t.sheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve sheet: %w", err)
	}

	// A sheet is never grading-processed unless its recognition completed.
	if err := sheet.BeginGrading(); err != nil {
		return nil, fmt.Errorf("sheet not ready for grading: %w", err)
	}
	if err := t.sheets.Update(ctx, sheet); err != nil {
		return nil, fmt.Errorf("failed to update grading status to processing: %w", err)
	}

	var outcome *domain.GradingOutcome
	attempts, err := t.retrier.Do(ctx, func(ctx context.Context) error {
		result, gradeErr := t.grader.Grade(ctx, sheet)
		if gradeErr != nil {
			return gradeErr
		}
		outcome = result
		return nil
	})

	if err != nil {
		t.logger.Error("grading failed terminally", "attempts", attempts, "error", err)
		if markErr := sheet.MarkGradingError(err.Error()); markErr == nil {
			if updateErr := t.sheets.Update(ctx, sheet); updateErr != nil {
				t.logger.Error("failed to persist grading error state", "error", updateErr)
			}
		}
		return nil, fmt.Errorf("grading failed after %d attempts: %w", attempts, err)
	}

	sheet.CompleteGrading(outcome.Score, outcome.Comments)
	if err := t.sheets.Update(ctx, sheet); err != nil {
		return nil, fmt.Errorf("failed to persist grading outcome: %w", err)
	}

	t.logger.Info("grading task completed",
		"score", outcome.Score,
		"attempts", attempts)

	result, err := json.Marshal(gradingResult{
		SheetID:  t.sheetID,
		Score:    outcome.Score,
		MaxScore: outcome.MaxScore,
		Attempts: attempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grading result: %w", err)
	}

	return result, nil
}

// Ensure GradingTask implements Task
var _ Task = (*GradingTask)(nil)
