// Package ingest drives the intake of scanned answer sheets: fingerprinting,
// duplicate detection, bounded-concurrency recognition, quality assessment,
// and handoff to the async grading pipeline via events.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aveledo/examflow/internal/domain"
	"github.com/aveledo/examflow/internal/events"
	"github.com/aveledo/examflow/internal/fingerprint"
	"github.com/aveledo/examflow/internal/quality"
	"github.com/aveledo/examflow/internal/recognition"
	"github.com/aveledo/examflow/internal/store"
	"github.com/aveledo/examflow/internal/task"
)

// Validation errors for orchestrator dependencies
var (
	ErrNilSheetStore = errors.New("sheet store cannot be nil")
	ErrNilRecognizer = errors.New("recognizer cannot be nil")
	ErrNilAssessor   = errors.New("quality assessor cannot be nil")
	ErrNilEmitter    = errors.New("event emitter cannot be nil")
	ErrNilLogger     = errors.New("logger cannot be nil")
)

// Config holds the intake tuning knobs.
type Config struct {
	// MaxConcurrent bounds the number of sheets recognized in parallel.
	MaxConcurrent int

	// RecognitionTimeout caps a single recognition call. A sheet whose
	// recognition exceeds it is marked as a recognition error.
	RecognitionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.RecognitionTimeout <= 0 {
		c.RecognitionTimeout = 30 * time.Second
	}
	return c
}

// gradingRequest is the event payload asking for a grading task. It mirrors
// the payload the task dispatcher expects.
type gradingRequest struct {
	SheetID uuid.UUID `json:"sheet_id"`
}

// Orchestrator runs ingestion batches end to end. It is safe for concurrent
// use; each batch gets its own fan-out group, and the duplicate check-and-
// create section is serialized per (exam, content hash) pair.
type Orchestrator struct {
	sheets     store.SheetStore
	recognizer recognition.Recognizer
	assessor   *quality.Assessor
	emitter    events.EventEmitter
	cfg        Config
	logger     *slog.Logger
	hashLocks  *keyedMutex
}

// NewOrchestrator creates an Orchestrator, validating that all required
// dependencies are non-nil.
func NewOrchestrator(
	sheets store.SheetStore,
	recognizer recognition.Recognizer,
	assessor *quality.Assessor,
	emitter events.EventEmitter,
	cfg Config,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if sheets == nil {
		return nil, ErrNilSheetStore
	}
	if recognizer == nil {
		return nil, ErrNilRecognizer
	}
	if assessor == nil {
		return nil, ErrNilAssessor
	}
	if emitter == nil {
		return nil, ErrNilEmitter
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &Orchestrator{
		sheets:     sheets,
		recognizer: recognizer,
		assessor:   assessor,
		emitter:    emitter,
		cfg:        cfg.withDefaults(),
		logger:     logger.With(slog.String("component", "ingest_orchestrator")),
		hashLocks:  newKeyedMutex(),
	}, nil
}

// IngestBatch processes the given files for one exam. Each file is
// fingerprinted and checked for duplicates, then the non-duplicates are
// recognized with bounded concurrency and handed to the grading pipeline.
// One file's failure never affects its siblings; the returned BatchResult
// lists every file's outcome in input order. An empty file list yields an
// empty result. A nil exam ID fails the whole batch before any file is
// touched.
func (o *Orchestrator) IngestBatch(ctx context.Context, examID uuid.UUID, filePaths []string) (*BatchResult, error) {
	if examID == uuid.Nil {
		return nil, domain.ErrEmptyExamID
	}

	details := make([]ItemResult, len(filePaths))

	o.logger.InfoContext(ctx, "starting ingestion batch",
		slog.String("exam_id", examID.String()),
		slog.Int("file_count", len(filePaths)))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.MaxConcurrent)

	for i, filePath := range filePaths {
		group.Go(func() error {
			// Per-item failures land in the result slot; the group error
			// is reserved for context cancellation so one bad file never
			// tears down its siblings.
			details[i] = o.processFile(groupCtx, examID, filePath)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	result := tally(details)

	o.logger.InfoContext(ctx, "ingestion batch finished",
		slog.String("exam_id", examID.String()),
		slog.Int("total", result.Total),
		slog.Int("success", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("duplicates", result.Duplicates))

	return result, nil
}

// processFile runs the full per-file pipeline and reports the outcome. It
// never returns an error; every failure mode is folded into the ItemResult.
func (o *Orchestrator) processFile(ctx context.Context, examID uuid.UUID, filePath string) ItemResult {
	if err := ctx.Err(); err != nil {
		return errorItem(filePath, err)
	}

	hash, err := fingerprint.File(filePath)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to fingerprint file",
			slog.String("file", filePath), slog.String("error", err.Error()))
		return errorItem(filePath, fmt.Errorf("fingerprinting file: %w", err))
	}

	sheet, created, err := o.registerSheet(ctx, examID, filePath, hash)
	if err != nil {
		return errorItem(filePath, err)
	}
	if !created {
		o.logger.InfoContext(ctx, "duplicate sheet skipped",
			slog.String("file", filePath),
			slog.String("content_hash", hash))
		return duplicateItem(filePath)
	}

	if err := o.recognizeSheet(ctx, sheet); err != nil {
		return errorItem(filePath, err)
	}

	o.dispatchGrading(ctx, sheet)

	return successItem(filePath, sheet)
}

// registerSheet creates the sheet record unless an identical file was already
// ingested for this exam. The duplicate check and the insert run under a
// per-(exam, hash) lock so concurrent copies of the same content cannot both
// slip past the check; the store's unique constraint remains the backstop.
func (o *Orchestrator) registerSheet(ctx context.Context, examID uuid.UUID, filePath, hash string) (*domain.Sheet, bool, error) {
	unlock := o.hashLocks.lock(examID.String() + ":" + hash)
	defer unlock()

	_, err := o.sheets.FindByExamAndHash(ctx, examID, hash)
	if err == nil {
		return nil, false, nil
	}
	if !errors.Is(err, store.ErrSheetNotFound) {
		return nil, false, fmt.Errorf("checking for duplicate sheet: %w", err)
	}

	sheet, err := domain.NewSheet(examID, filePath, hash)
	if err != nil {
		return nil, false, fmt.Errorf("creating sheet record: %w", err)
	}

	if err := o.sheets.Create(ctx, sheet); err != nil {
		if errors.Is(err, store.ErrDuplicateSheet) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("saving sheet record: %w", err)
	}

	return sheet, true, nil
}

// recognizeSheet runs recognition under the configured timeout, assesses the
// output quality, and persists the outcome. Recognition failures are recorded
// on the sheet before being returned.
func (o *Orchestrator) recognizeSheet(ctx context.Context, sheet *domain.Sheet) error {
	if err := sheet.BeginRecognition(); err != nil {
		return err
	}
	if err := o.sheets.Update(ctx, sheet); err != nil {
		return fmt.Errorf("updating sheet status: %w", err)
	}

	recognizeCtx, cancel := context.WithTimeout(ctx, o.cfg.RecognitionTimeout)
	defer cancel()

	result, err := o.recognizer.Recognize(recognizeCtx, sheet.FilePath)
	if err != nil {
		return o.failRecognition(ctx, sheet, err)
	}

	identity := recognition.ExtractIdentity(result.Text, result.Fields)
	issues := o.assessor.Assess(result.Text, result.Confidence)

	if err := sheet.CompleteRecognition(result.Text, result.Confidence, identity, issues); err != nil {
		return o.failRecognition(ctx, sheet, err)
	}
	if err := o.sheets.Update(ctx, sheet); err != nil {
		return fmt.Errorf("saving recognition result: %w", err)
	}

	if sheet.NeedsReview {
		o.logger.InfoContext(ctx, "sheet flagged for review",
			slog.String("sheet_id", sheet.ID.String()),
			slog.Any("issues", issues))
	}

	return nil
}

// failRecognition records the recognition failure on the sheet and returns a
// wrapped error for the batch result. A persistence failure while recording
// is logged but the original recognition error is what surfaces.
func (o *Orchestrator) failRecognition(ctx context.Context, sheet *domain.Sheet, cause error) error {
	if markErr := sheet.MarkRecognitionError(cause.Error()); markErr != nil {
		o.logger.ErrorContext(ctx, "failed to mark recognition error",
			slog.String("sheet_id", sheet.ID.String()),
			slog.String("error", markErr.Error()))
	} else if updateErr := o.sheets.Update(ctx, sheet); updateErr != nil {
		o.logger.ErrorContext(ctx, "failed to persist recognition error",
			slog.String("sheet_id", sheet.ID.String()),
			slog.String("error", updateErr.Error()))
	}

	return fmt.Errorf("recognizing sheet: %w", cause)
}

// dispatchGrading asks the task pipeline to grade the sheet. Emission
// failures (a full queue, most likely) do not fail the item: the sheet is
// durably recognized, and recovery re-dispatches it on the next start.
func (o *Orchestrator) dispatchGrading(ctx context.Context, sheet *domain.Sheet) {
	event, err := events.NewTaskRequestEvent(task.KindGrading, gradingRequest{SheetID: sheet.ID})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to build grading event",
			slog.String("sheet_id", sheet.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	if err := o.emitter.EmitEvent(ctx, event); err != nil {
		o.logger.ErrorContext(ctx, "failed to dispatch grading task",
			slog.String("sheet_id", sheet.ID.String()),
			slog.String("error", err.Error()))
	}
}
