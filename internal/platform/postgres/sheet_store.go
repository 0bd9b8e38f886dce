package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aveledo/examflow/internal/domain"
	"github.com/aveledo/examflow/internal/platform/logger"
	"github.com/aveledo/examflow/internal/store"
)

// PostgresSheetStore implements the store.SheetStore interface
// using a PostgreSQL database as the storage backend.
type PostgresSheetStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSheetStore creates a new PostgreSQL implementation of the
// SheetStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller. If logger is nil, the
// default logger is used.
func NewPostgresSheetStore(db store.DBTX, logger *slog.Logger) *PostgresSheetStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSheetStore{
		db:     db,
		logger: logger.With(slog.String("component", "sheet_store")),
	}
}

// Ensure PostgresSheetStore implements store.SheetStore interface
var _ store.SheetStore = (*PostgresSheetStore)(nil)

const sheetColumns = `
	id, exam_id, file_path, content_hash,
	recognition_status, recognized_text, confidence,
	student_id, student_name, class_name,
	quality_issues, needs_review,
	grading_status, score, grading_comments,
	error_message, created_at, updated_at
`

// Create implements store.SheetStore.Create
// It saves a new sheet to the database after domain validation.
// Returns store.ErrDuplicateSheet if a sheet with the same exam ID and
// content hash already exists.
func (s *PostgresSheetStore) Create(ctx context.Context, sheet *domain.Sheet) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := sheet.Validate(); err != nil {
		log.Warn("sheet validation failed during create",
			slog.String("error", err.Error()),
			slog.String("sheet_id", sheet.ID.String()))
		return err
	}

	issues, err := marshalIssues(sheet.QualityIssues)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sheets (` + sheetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		sheet.ID,
		sheet.ExamID,
		sheet.FilePath,
		sheet.ContentHash,
		sheet.RecognitionStatus,
		sheet.RecognizedText,
		sheet.Confidence,
		sheet.Identity.StudentID,
		sheet.Identity.StudentName,
		sheet.Identity.ClassName,
		issues,
		sheet.NeedsReview,
		sheet.GradingStatus,
		sheet.Score,
		sheet.GradingComments,
		sheet.ErrorMessage,
		sheet.CreatedAt,
		sheet.UpdatedAt,
	)

	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("duplicate sheet content for exam",
				slog.String("exam_id", sheet.ExamID.String()),
				slog.String("content_hash", sheet.ContentHash))
			return fmt.Errorf("%w: %v", store.ErrDuplicateSheet, err)
		}

		log.Error("failed to create sheet",
			slog.String("error", err.Error()),
			slog.String("sheet_id", sheet.ID.String()),
			slog.String("exam_id", sheet.ExamID.String()))
		return MapError(err)
	}

	log.Info("sheet created successfully",
		slog.String("sheet_id", sheet.ID.String()),
		slog.String("exam_id", sheet.ExamID.String()))
	return nil
}

// GetByID implements store.SheetStore.GetByID
// Returns store.ErrSheetNotFound if the sheet does not exist.
func (s *PostgresSheetStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sheet, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + sheetColumns + `
		FROM sheets
		WHERE id = $1
	`

	sheet, err := s.scanSheet(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("sheet not found", slog.String("sheet_id", id.String()))
			return nil, store.ErrSheetNotFound
		}
		log.Error("failed to get sheet by ID",
			slog.String("error", err.Error()),
			slog.String("sheet_id", id.String()))
		return nil, MapError(err)
	}

	return sheet, nil
}

// FindByExamAndHash implements store.SheetStore.FindByExamAndHash
// Returns store.ErrSheetNotFound if no sheet with the given content hash
// exists within the exam.
func (s *PostgresSheetStore) FindByExamAndHash(
	ctx context.Context,
	examID uuid.UUID,
	contentHash string,
) (*domain.Sheet, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + sheetColumns + `
		FROM sheets
		WHERE exam_id = $1 AND content_hash = $2
	`

	sheet, err := s.scanSheet(s.db.QueryRowContext(ctx, query, examID, contentHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSheetNotFound
		}
		log.Error("failed to find sheet by exam and hash",
			slog.String("error", err.Error()),
			slog.String("exam_id", examID.String()),
			slog.String("content_hash", contentHash))
		return nil, MapError(err)
	}

	return sheet, nil
}

// Update implements store.SheetStore.Update
// Returns store.ErrSheetNotFound if the sheet does not exist.
func (s *PostgresSheetStore) Update(ctx context.Context, sheet *domain.Sheet) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := sheet.Validate(); err != nil {
		log.Warn("sheet validation failed during update",
			slog.String("error", err.Error()),
			slog.String("sheet_id", sheet.ID.String()))
		return err
	}

	issues, err := marshalIssues(sheet.QualityIssues)
	if err != nil {
		return err
	}

	query := `
		UPDATE sheets
		SET recognition_status = $1, recognized_text = $2, confidence = $3,
		    student_id = $4, student_name = $5, class_name = $6,
		    quality_issues = $7, needs_review = $8,
		    grading_status = $9, score = $10, grading_comments = $11,
		    error_message = $12, updated_at = $13
		WHERE id = $14
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		sheet.RecognitionStatus,
		sheet.RecognizedText,
		sheet.Confidence,
		sheet.Identity.StudentID,
		sheet.Identity.StudentName,
		sheet.Identity.ClassName,
		issues,
		sheet.NeedsReview,
		sheet.GradingStatus,
		sheet.Score,
		sheet.GradingComments,
		sheet.ErrorMessage,
		sheet.UpdatedAt,
		sheet.ID,
	)

	if err != nil {
		log.Error("failed to update sheet",
			slog.String("error", err.Error()),
			slog.String("sheet_id", sheet.ID.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "sheet"); err != nil {
		log.Debug("sheet not found for update",
			slog.String("sheet_id", sheet.ID.String()))
		return store.ErrSheetNotFound
	}

	return nil
}

// ListAwaitingGrading implements store.SheetStore.ListAwaitingGrading
// It returns sheets whose recognition completed but whose grading is still
// pending or processing, oldest first. Sheets stuck in processing are
// included because a crash can leave them behind.
func (s *PostgresSheetStore) ListAwaitingGrading(ctx context.Context) ([]*domain.Sheet, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + sheetColumns + `
		FROM sheets
		WHERE recognition_status = $1 AND grading_status IN ($2, $3)
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(
		ctx,
		query,
		domain.RecognitionCompleted,
		domain.GradingPending,
		domain.GradingProcessing,
	)
	if err != nil {
		log.Error("failed to query sheets awaiting grading",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error("failed to close rows", slog.String("error", closeErr.Error()))
		}
	}()

	var sheets []*domain.Sheet
	for rows.Next() {
		sheet, err := s.scanSheet(rows)
		if err != nil {
			log.Error("failed to scan sheet row",
				slog.String("error", err.Error()))
			return nil, MapError(err)
		}
		sheets = append(sheets, sheet)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	if sheets == nil {
		sheets = []*domain.Sheet{}
	}

	log.Debug("found sheets awaiting grading", slog.Int("count", len(sheets)))
	return sheets, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresSheetStore) scanSheet(row rowScanner) (*domain.Sheet, error) {
	var sheet domain.Sheet
	var recognitionStatus, gradingStatus string
	var issues []byte

	err := row.Scan(
		&sheet.ID,
		&sheet.ExamID,
		&sheet.FilePath,
		&sheet.ContentHash,
		&recognitionStatus,
		&sheet.RecognizedText,
		&sheet.Confidence,
		&sheet.Identity.StudentID,
		&sheet.Identity.StudentName,
		&sheet.Identity.ClassName,
		&issues,
		&sheet.NeedsReview,
		&gradingStatus,
		&sheet.Score,
		&sheet.GradingComments,
		&sheet.ErrorMessage,
		&sheet.CreatedAt,
		&sheet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sheet.RecognitionStatus = domain.RecognitionStatus(recognitionStatus)
	sheet.GradingStatus = domain.GradingStatus(gradingStatus)

	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &sheet.QualityIssues); err != nil {
			return nil, fmt.Errorf("decoding quality issues: %w", err)
		}
	}

	return &sheet, nil
}

// marshalIssues encodes the quality issue list as JSON for the jsonb column.
// A nil list is stored as an empty array rather than SQL NULL.
func marshalIssues(issues []string) ([]byte, error) {
	if issues == nil {
		issues = []string{}
	}
	data, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("encoding quality issues: %w", err)
	}
	return data, nil
}
