package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveledo/examflow/internal/domain"
	"github.com/aveledo/examflow/internal/events"
	"github.com/aveledo/examflow/internal/quality"
	"github.com/aveledo/examflow/internal/recognition"
	"github.com/aveledo/examflow/internal/store"
	"github.com/aveledo/examflow/internal/task"
)

// goodText is long enough and carries identity labels, so no quality issue
// fires on it.
var goodText = "学号: 2024001 姓名: 张三 班级: 三年二班 " + strings.Repeat("第1题答案是B。", 20)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSheetStore is an in-memory store.SheetStore.
type fakeSheetStore struct {
	mu     sync.Mutex
	sheets map[uuid.UUID]*domain.Sheet
	byHash map[string]uuid.UUID

	createErr error
	findErr   error
	updateErr error
}

func newFakeSheetStore() *fakeSheetStore {
	return &fakeSheetStore{
		sheets: make(map[uuid.UUID]*domain.Sheet),
		byHash: make(map[string]uuid.UUID),
	}
}

func hashKey(examID uuid.UUID, contentHash string) string {
	return examID.String() + ":" + contentHash
}

func (s *fakeSheetStore) Create(ctx context.Context, sheet *domain.Sheet) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hashKey(sheet.ExamID, sheet.ContentHash)
	if _, exists := s.byHash[key]; exists {
		return store.ErrDuplicateSheet
	}
	copied := *sheet
	s.sheets[sheet.ID] = &copied
	s.byHash[key] = sheet.ID
	return nil
}

func (s *fakeSheetStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, ok := s.sheets[id]
	if !ok {
		return nil, store.ErrSheetNotFound
	}
	copied := *sheet
	return &copied, nil
}

func (s *fakeSheetStore) FindByExamAndHash(ctx context.Context, examID uuid.UUID, contentHash string) (*domain.Sheet, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[hashKey(examID, contentHash)]
	if !ok {
		return nil, store.ErrSheetNotFound
	}
	copied := *s.sheets[id]
	return &copied, nil
}

func (s *fakeSheetStore) Update(ctx context.Context, sheet *domain.Sheet) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sheets[sheet.ID]; !ok {
		return store.ErrSheetNotFound
	}
	copied := *sheet
	s.sheets[sheet.ID] = &copied
	return nil
}

func (s *fakeSheetStore) ListAwaitingGrading(ctx context.Context) ([]*domain.Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Sheet
	for _, sheet := range s.sheets {
		if sheet.RecognitionStatus == domain.RecognitionCompleted &&
			(sheet.GradingStatus == domain.GradingPending || sheet.GradingStatus == domain.GradingProcessing) {
			copied := *sheet
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeSheetStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sheets)
}

// fakeRecognizer runs a scripted function per call.
type fakeRecognizer struct {
	fn func(ctx context.Context, filePath string) (*recognition.Result, error)
}

func (r *fakeRecognizer) Recognize(ctx context.Context, filePath string) (*recognition.Result, error) {
	if r.fn != nil {
		return r.fn(ctx, filePath)
	}
	return &recognition.Result{Text: goodText, Confidence: 95}, nil
}

// fakeEmitter records emitted events.
type fakeEmitter struct {
	mu      sync.Mutex
	events  []*events.TaskRequestEvent
	emitErr error
}

func (e *fakeEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if e.emitErr != nil {
		return e.emitErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEmitter) emitted() []*events.TaskRequestEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*events.TaskRequestEvent(nil), e.events...)
}

func writeSheetFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type orchestratorDeps struct {
	sheets     *fakeSheetStore
	recognizer *fakeRecognizer
	emitter    *fakeEmitter
	cfg        Config
}

func newTestOrchestrator(t *testing.T, deps orchestratorDeps) *Orchestrator {
	t.Helper()
	if deps.sheets == nil {
		deps.sheets = newFakeSheetStore()
	}
	if deps.recognizer == nil {
		deps.recognizer = &fakeRecognizer{}
	}
	if deps.emitter == nil {
		deps.emitter = &fakeEmitter{}
	}
	orch, err := NewOrchestrator(
		deps.sheets,
		deps.recognizer,
		quality.NewAssessor(quality.Config{}),
		deps.emitter,
		deps.cfg,
		setupTestLogger(),
	)
	require.NoError(t, err)
	return orch
}

func TestNewOrchestrator_Validation(t *testing.T) {
	sheets := newFakeSheetStore()
	recognizer := &fakeRecognizer{}
	assessor := quality.NewAssessor(quality.Config{})
	emitter := &fakeEmitter{}
	logger := setupTestLogger()

	_, err := NewOrchestrator(nil, recognizer, assessor, emitter, Config{}, logger)
	assert.ErrorIs(t, err, ErrNilSheetStore)

	_, err = NewOrchestrator(sheets, nil, assessor, emitter, Config{}, logger)
	assert.ErrorIs(t, err, ErrNilRecognizer)

	_, err = NewOrchestrator(sheets, recognizer, nil, emitter, Config{}, logger)
	assert.ErrorIs(t, err, ErrNilAssessor)

	_, err = NewOrchestrator(sheets, recognizer, assessor, nil, Config{}, logger)
	assert.ErrorIs(t, err, ErrNilEmitter)

	_, err = NewOrchestrator(sheets, recognizer, assessor, emitter, Config{}, nil)
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestIngestBatch_Success(t *testing.T) {
	dir := t.TempDir()
	fileA := writeSheetFile(t, dir, "a.jpg", "scan-a")
	fileB := writeSheetFile(t, dir, "b.jpg", "scan-b")

	sheets := newFakeSheetStore()
	emitter := &fakeEmitter{}
	orch := newTestOrchestrator(t, orchestratorDeps{sheets: sheets, emitter: emitter})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), []string{fileA, fileB})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Duplicates)
	require.Len(t, result.Details, 2)

	// Details stay in input order regardless of completion order.
	assert.Equal(t, fileA, result.Details[0].FilePath)
	assert.Equal(t, fileB, result.Details[1].FilePath)
	for _, item := range result.Details {
		assert.Equal(t, ItemSuccess, item.Status)
		assert.NotEmpty(t, item.SheetID)
		assert.Equal(t, "2024001", item.StudentID)
	}

	assert.Equal(t, 2, sheets.count())
	for _, item := range result.Details {
		id, parseErr := uuid.Parse(item.SheetID)
		require.NoError(t, parseErr)
		stored, getErr := sheets.GetByID(context.Background(), id)
		require.NoError(t, getErr)
		assert.Equal(t, domain.RecognitionCompleted, stored.RecognitionStatus)
		assert.Equal(t, "张三", stored.Identity.StudentName)
		assert.False(t, stored.NeedsReview)
	}

	emitted := emitter.emitted()
	require.Len(t, emitted, 2)
	for _, event := range emitted {
		assert.Equal(t, task.KindGrading, event.Kind)
	}
}

func TestIngestBatch_EmptyList(t *testing.T) {
	orch := newTestOrchestrator(t, orchestratorDeps{})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Details)
}

func TestIngestBatch_NilExamID(t *testing.T) {
	orch := newTestOrchestrator(t, orchestratorDeps{})

	_, err := orch.IngestBatch(context.Background(), uuid.Nil, []string{"/scans/a.jpg"})
	assert.ErrorIs(t, err, domain.ErrEmptyExamID)
}

func TestIngestBatch_DuplicateWithinBatch(t *testing.T) {
	dir := t.TempDir()
	fileA := writeSheetFile(t, dir, "a.jpg", "identical-content")
	fileB := writeSheetFile(t, dir, "b.jpg", "identical-content")

	sheets := newFakeSheetStore()
	orch := newTestOrchestrator(t, orchestratorDeps{sheets: sheets})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), []string{fileA, fileB})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, sheets.count())
}

func TestIngestBatch_DuplicateAgainstStore(t *testing.T) {
	dir := t.TempDir()
	filePath := writeSheetFile(t, dir, "a.jpg", "already-seen")

	examID := uuid.New()
	sheets := newFakeSheetStore()
	orch := newTestOrchestrator(t, orchestratorDeps{sheets: sheets})

	first, err := orch.IngestBatch(context.Background(), examID, []string{filePath})
	require.NoError(t, err)
	require.Equal(t, 1, first.Succeeded)

	second, err := orch.IngestBatch(context.Background(), examID, []string{filePath})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, ItemDuplicate, second.Details[0].Status)
	assert.Equal(t, 1, sheets.count())
}

func TestIngestBatch_SameContentDifferentExams(t *testing.T) {
	dir := t.TempDir()
	filePath := writeSheetFile(t, dir, "a.jpg", "shared-content")

	sheets := newFakeSheetStore()
	orch := newTestOrchestrator(t, orchestratorDeps{sheets: sheets})

	for range 2 {
		result, err := orch.IngestBatch(context.Background(), uuid.New(), []string{filePath})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Succeeded)
	}
	assert.Equal(t, 2, sheets.count())
}

func TestIngestBatch_UnreadableFileIsIsolated(t *testing.T) {
	dir := t.TempDir()
	good := writeSheetFile(t, dir, "good.jpg", "scan")
	missing := filepath.Join(dir, "missing.jpg")

	orch := newTestOrchestrator(t, orchestratorDeps{})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), []string{missing, good})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, ItemError, result.Details[0].Status)
	assert.NotEmpty(t, result.Details[0].Error)
	assert.Equal(t, ItemSuccess, result.Details[1].Status)
}

func TestIngestBatch_RecognitionFailure(t *testing.T) {
	dir := t.TempDir()
	filePath := writeSheetFile(t, dir, "a.jpg", "scan")

	sheets := newFakeSheetStore()
	emitter := &fakeEmitter{}
	recognizer := &fakeRecognizer{fn: func(ctx context.Context, fp string) (*recognition.Result, error) {
		return nil, errors.New("service unavailable")
	}}
	orch := newTestOrchestrator(t, orchestratorDeps{sheets: sheets, emitter: emitter, recognizer: recognizer})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), []string{filePath})
	require.NoError(t, err)

	require.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Details[0].Error, "service unavailable")

	// The sheet record survives with a non-empty error message.
	require.Equal(t, 1, sheets.count())
	for id := range sheets.sheets {
		stored, getErr := sheets.GetByID(context.Background(), id)
		require.NoError(t, getErr)
		assert.Equal(t, domain.RecognitionError, stored.RecognitionStatus)
		assert.NotEmpty(t, stored.ErrorMessage)
	}

	assert.Empty(t, emitter.emitted())
}

func TestIngestBatch_QualityIssuesFlagReview(t *testing.T) {
	dir := t.TempDir()
	filePath := writeSheetFile(t, dir, "a.jpg", "scan")

	sheets := newFakeSheetStore()
	emitter := &fakeEmitter{}
	recognizer := &fakeRecognizer{fn: func(ctx context.Context, fp string) (*recognition.Result, error) {
		return &recognition.Result{Text: "short text", Confidence: 50}, nil
	}}
	orch := newTestOrchestrator(t, orchestratorDeps{sheets: sheets, emitter: emitter, recognizer: recognizer})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), []string{filePath})
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)

	id, err := uuid.Parse(result.Details[0].SheetID)
	require.NoError(t, err)
	stored, err := sheets.GetByID(context.Background(), id)
	require.NoError(t, err)

	assert.True(t, stored.NeedsReview)
	assert.Contains(t, stored.QualityIssues, quality.IssueLowConfidence)
	assert.Contains(t, stored.QualityIssues, quality.IssueInsufficientText)

	// A flagged sheet still goes on to grading.
	assert.Len(t, emitter.emitted(), 1)
}

func TestIngestBatch_RecognitionTimeout(t *testing.T) {
	dir := t.TempDir()
	filePath := writeSheetFile(t, dir, "a.jpg", "scan")

	recognizer := &fakeRecognizer{fn: func(ctx context.Context, fp string) (*recognition.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &recognition.Result{Text: goodText, Confidence: 95}, nil
		}
	}}
	orch := newTestOrchestrator(t, orchestratorDeps{
		recognizer: recognizer,
		cfg:        Config{RecognitionTimeout: 20 * time.Millisecond},
	})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), []string{filePath})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Details[0].Error, context.DeadlineExceeded.Error())
}

func TestIngestBatch_ConcurrencyBound(t *testing.T) {
	dir := t.TempDir()
	files := make([]string, 6)
	for i := range files {
		files[i] = writeSheetFile(t, dir, string(rune('a'+i))+".jpg", strings.Repeat("x", i+1))
	}

	var inFlight, maxInFlight atomic.Int32
	recognizer := &fakeRecognizer{fn: func(ctx context.Context, fp string) (*recognition.Result, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			observed := maxInFlight.Load()
			if current <= observed || maxInFlight.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return &recognition.Result{Text: goodText, Confidence: 95}, nil
	}}

	orch := newTestOrchestrator(t, orchestratorDeps{
		recognizer: recognizer,
		cfg:        Config{MaxConcurrent: 2},
	})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), files)
	require.NoError(t, err)

	assert.Equal(t, 6, result.Succeeded)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
}

func TestIngestBatch_EmitFailureKeepsSuccess(t *testing.T) {
	dir := t.TempDir()
	filePath := writeSheetFile(t, dir, "a.jpg", "scan")

	emitter := &fakeEmitter{emitErr: errors.New("queue full")}
	orch := newTestOrchestrator(t, orchestratorDeps{emitter: emitter})

	result, err := orch.IngestBatch(context.Background(), uuid.New(), []string{filePath})
	require.NoError(t, err)

	// The sheet is durably recognized; grading is re-dispatched on restart.
	assert.Equal(t, 1, result.Succeeded)
}
