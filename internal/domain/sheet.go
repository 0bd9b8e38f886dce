package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RecognitionStatus represents the recognition processing state of a sheet.
type RecognitionStatus string

// Possible recognition status values
const (
	RecognitionPending    RecognitionStatus = "pending"
	RecognitionProcessing RecognitionStatus = "processing"
	RecognitionCompleted  RecognitionStatus = "completed"
	RecognitionError      RecognitionStatus = "error"
)

// GradingStatus represents the grading state of a sheet, tracked
// independently of the recognition state.
type GradingStatus string

// Possible grading status values
const (
	GradingPending    GradingStatus = "pending"
	GradingProcessing GradingStatus = "processing"
	GradingCompleted  GradingStatus = "completed"
	GradingError      GradingStatus = "error"
)

// Common validation errors for Sheet
var (
	ErrEmptySheetID          = errors.New("sheet ID cannot be empty")
	ErrEmptyExamID           = errors.New("exam ID cannot be empty")
	ErrEmptyFilePath         = errors.New("sheet file path cannot be empty")
	ErrEmptyContentHash      = errors.New("sheet content hash cannot be empty")
	ErrInvalidSheetStatus    = errors.New("invalid sheet status")
	ErrInvalidConfidence     = errors.New("confidence must be between 0 and 100")
	ErrEmptyErrorMessage     = errors.New("error status requires a non-empty message")
	ErrSheetNotRecognized    = errors.New("sheet recognition is not completed")
	ErrRecognitionNotPending = errors.New("sheet recognition already started")
)

// Identity holds the student identity fields extracted from recognized text.
// Fields that could not be extracted are left empty.
type Identity struct {
	StudentID   string `json:"student_id,omitempty"`
	StudentName string `json:"student_name,omitempty"`
	ClassName   string `json:"class_name,omitempty"`
}

// Sheet represents one scanned answer sheet submitted for an exam. It tracks
// the original file, its content fingerprint, and the independent recognition
// and grading lifecycles.
type Sheet struct {
	ID          uuid.UUID `json:"id"`
	ExamID      uuid.UUID `json:"exam_id"`
	FilePath    string    `json:"file_path"`
	ContentHash string    `json:"content_hash"`

	RecognitionStatus RecognitionStatus `json:"recognition_status"`
	RecognizedText    string            `json:"recognized_text,omitempty"`
	Confidence        float64           `json:"confidence"`
	Identity          Identity          `json:"identity"`
	QualityIssues     []string          `json:"quality_issues,omitempty"`
	NeedsReview       bool              `json:"needs_review"`

	GradingStatus   GradingStatus `json:"grading_status"`
	Score           float64       `json:"score"`
	GradingComments string        `json:"grading_comments,omitempty"`

	// ErrorMessage is set only when one of the statuses transitions to error.
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSheet creates a new Sheet for the given exam, file path, and content
// hash. It generates a new UUID, sets both lifecycles to pending, and sets
// the creation/update timestamps. Returns an error if validation fails.
func NewSheet(examID uuid.UUID, filePath, contentHash string) (*Sheet, error) {
	now := time.Now().UTC()
	sheet := &Sheet{
		ID:                uuid.New(),
		ExamID:            examID,
		FilePath:          filePath,
		ContentHash:       contentHash,
		RecognitionStatus: RecognitionPending,
		GradingStatus:     GradingPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := sheet.Validate(); err != nil {
		return nil, err
	}

	return sheet, nil
}

// Validate checks if the Sheet has valid data.
// Returns an error if any field fails validation.
func (s *Sheet) Validate() error {
	if s.ID == uuid.Nil {
		return ErrEmptySheetID
	}

	if s.ExamID == uuid.Nil {
		return ErrEmptyExamID
	}

	if s.FilePath == "" {
		return ErrEmptyFilePath
	}

	if s.ContentHash == "" {
		return ErrEmptyContentHash
	}

	if !isValidRecognitionStatus(s.RecognitionStatus) ||
		!isValidGradingStatus(s.GradingStatus) {
		return ErrInvalidSheetStatus
	}

	if s.Confidence < 0 || s.Confidence > 100 {
		return ErrInvalidConfidence
	}

	// A sheet in an error state must carry an explanation.
	if (s.RecognitionStatus == RecognitionError || s.GradingStatus == GradingError) &&
		s.ErrorMessage == "" {
		return ErrEmptyErrorMessage
	}

	return nil
}

// BeginRecognition transitions recognition from pending to processing.
func (s *Sheet) BeginRecognition() error {
	if s.RecognitionStatus != RecognitionPending {
		return ErrRecognitionNotPending
	}

	s.RecognitionStatus = RecognitionProcessing
	s.touch()
	return nil
}

// CompleteRecognition records a successful recognition result: the extracted
// text, confidence score, identity fields, and quality issues. NeedsReview is
// derived from the issue list.
func (s *Sheet) CompleteRecognition(text string, confidence float64, identity Identity, issues []string) error {
	if confidence < 0 || confidence > 100 {
		return ErrInvalidConfidence
	}

	s.RecognitionStatus = RecognitionCompleted
	s.RecognizedText = text
	s.Confidence = confidence
	s.Identity = identity
	s.QualityIssues = issues
	s.NeedsReview = len(issues) > 0
	s.ErrorMessage = ""
	s.touch()
	return nil
}

// MarkRecognitionError transitions recognition to the error state with the
// given message. The message must be non-empty.
func (s *Sheet) MarkRecognitionError(msg string) error {
	if msg == "" {
		return ErrEmptyErrorMessage
	}

	s.RecognitionStatus = RecognitionError
	s.ErrorMessage = msg
	s.touch()
	return nil
}

// BeginGrading transitions grading to processing. A sheet is never graded
// before its recognition completed.
func (s *Sheet) BeginGrading() error {
	if s.RecognitionStatus != RecognitionCompleted {
		return ErrSheetNotRecognized
	}

	s.GradingStatus = GradingProcessing
	s.touch()
	return nil
}

// CompleteGrading records a successful grading outcome.
func (s *Sheet) CompleteGrading(score float64, comments string) {
	s.GradingStatus = GradingCompleted
	s.Score = score
	s.GradingComments = comments
	s.touch()
}

// MarkGradingError transitions grading to the error state with the given
// message. The message must be non-empty.
func (s *Sheet) MarkGradingError(msg string) error {
	if msg == "" {
		return ErrEmptyErrorMessage
	}

	s.GradingStatus = GradingError
	s.ErrorMessage = msg
	s.touch()
	return nil
}

func (s *Sheet) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func isValidRecognitionStatus(status RecognitionStatus) bool {
	switch status {
	case RecognitionPending, RecognitionProcessing, RecognitionCompleted, RecognitionError:
		return true
	default:
		return false
	}
}

func isValidGradingStatus(status GradingStatus) bool {
	switch status {
	case GradingPending, GradingProcessing, GradingCompleted, GradingError:
		return true
	default:
		return false
	}
}
