package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/aveledo/examflow/internal/domain"
)

// SheetStore defines the interface for sheet record persistence.
// The pipeline never deletes sheets; deletion is an administrative action
// outside this interface.
type SheetStore interface {
	// Create saves a new sheet to the store.
	// Returns ErrDuplicateSheet if a sheet with the same exam ID and
	// content hash already exists.
	// Returns validation errors from the domain Sheet if data is invalid.
	Create(ctx context.Context, sheet *domain.Sheet) error

	// GetByID retrieves a sheet by its unique ID.
	// Returns ErrSheetNotFound if the sheet does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Sheet, error)

	// FindByExamAndHash retrieves the sheet with the given content hash
	// within an exam. Returns ErrSheetNotFound if no such sheet exists.
	FindByExamAndHash(ctx context.Context, examID uuid.UUID, contentHash string) (*domain.Sheet, error)

	// Update saves changes to an existing sheet.
	// Returns ErrSheetNotFound if the sheet does not exist.
	// Returns validation errors if the sheet data is invalid.
	Update(ctx context.Context, sheet *domain.Sheet) error

	// ListAwaitingGrading retrieves sheets whose recognition completed but
	// whose grading has not finished (pending or processing). Used to
	// re-dispatch grading work after a restart.
	ListAwaitingGrading(ctx context.Context) ([]*domain.Sheet, error)
}
