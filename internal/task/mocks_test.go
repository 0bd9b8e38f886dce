package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aveledo/examflow/internal/domain"
	"github.com/aveledo/examflow/internal/store"
)

// mockTask implements the Task interface for testing
type mockTask struct {
	id      uuid.UUID
	kind    string
	payload []byte
	execFn  func(ctx context.Context) ([]byte, error)
}

func (m *mockTask) ID() uuid.UUID {
	return m.id
}

func (m *mockTask) Kind() string {
	return m.kind
}

func (m *mockTask) Payload() []byte {
	return m.payload
}

func (m *mockTask) Execute(ctx context.Context) ([]byte, error) {
	if m.execFn != nil {
		return m.execFn(ctx)
	}
	return []byte("done"), nil
}

func newMockTask() *mockTask {
	return &mockTask{
		id:      uuid.New(),
		kind:    "mock",
		payload: []byte("test payload"),
	}
}

// fakeSheetStore is an in-memory SheetStore for testing. It stores copies so
// mutations only become visible through Update, like a real store.
type fakeSheetStore struct {
	mu        sync.Mutex
	sheets    map[uuid.UUID]domain.Sheet
	getErr    error
	updateErr error
	listErr   error
}

func newFakeSheetStore() *fakeSheetStore {
	return &fakeSheetStore{sheets: make(map[uuid.UUID]domain.Sheet)}
}

func (s *fakeSheetStore) put(sheet *domain.Sheet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheet.ID] = *sheet
}

func (s *fakeSheetStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	sheet, ok := s.sheets[id]
	if !ok {
		return nil, store.ErrSheetNotFound
	}
	copied := sheet
	return &copied, nil
}

func (s *fakeSheetStore) Update(_ context.Context, sheet *domain.Sheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.sheets[sheet.ID]; !ok {
		return store.ErrSheetNotFound
	}
	s.sheets[sheet.ID] = *sheet
	return nil
}

func (s *fakeSheetStore) ListAwaitingGrading(_ context.Context) ([]*domain.Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*domain.Sheet
	for _, sheet := range s.sheets {
		if sheet.RecognitionStatus == domain.RecognitionCompleted &&
			(sheet.GradingStatus == domain.GradingPending || sheet.GradingStatus == domain.GradingProcessing) {
			copied := sheet
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeGrader is a scriptable Grader for testing.
type fakeGrader struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, sheet *domain.Sheet) (*domain.GradingOutcome, error)
}

func (g *fakeGrader) Grade(ctx context.Context, sheet *domain.Sheet) (*domain.GradingOutcome, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.fn != nil {
		return g.fn(ctx, sheet)
	}
	return &domain.GradingOutcome{Score: 80, MaxScore: 100}, nil
}

func (g *fakeGrader) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// recognizedSheet creates a sheet whose recognition has completed, stored in
// the fake store.
func recognizedSheet(t *testing.T, sheets *fakeSheetStore) *domain.Sheet {
	t.Helper()
	sheet, err := domain.NewSheet(uuid.New(), "/scans/sheet.jpg", "hash-1")
	if err != nil {
		t.Fatalf("failed to build sheet: %v", err)
	}
	if err := sheet.BeginRecognition(); err != nil {
		t.Fatalf("failed to begin recognition: %v", err)
	}
	if err := sheet.CompleteRecognition("学号: 20230142", 92, domain.Identity{StudentID: "20230142"}, nil); err != nil {
		t.Fatalf("failed to complete recognition: %v", err)
	}
	sheets.put(sheet)
	return sheet
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// waitFor polls cond until it is true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// fastRetrier returns a retrier suitable for tests.
func fastRetrier(policy RetryPolicy) *Retrier {
	return NewRetrier(policy, setupTestLogger())
}
