// Package grading defines the boundary to the grading computation.
// The actual scoring lives behind the Grader interface; this package keeps
// the application core independent of the AI service that implements it.
package grading

import (
	"context"

	"github.com/aveledo/examflow/internal/domain"
)

// Grader defines the interface for the external grading computation.
type Grader interface {
	// Grade scores the recognized answers on the given sheet. It may fail
	// transiently; callers wrap it with a retry policy.
	Grade(ctx context.Context, sheet *domain.Sheet) (*domain.GradingOutcome, error)
}
