package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/events"
	"github.com/phrazzld/annotator-api/internal/service"
)

// mockBatchService implements service.BatchService with function fields.
// Unset functions panic so a test notices unexpected calls.
type mockBatchService struct {
	CreateFn        func(ctx context.Context, segments []domain.SegmentRef, cfg *domain.AnalysisConfig) (*domain.Batch, error)
	GetFn           func(ctx context.Context, id uuid.UUID) (*service.BatchWithItems, error)
	ListFn          func(ctx context.Context) ([]*domain.Batch, error)
	ResumeFn        func(ctx context.Context, id uuid.UUID) (int, error)
	RetryItemFn     func(ctx context.Context, key domain.ItemKey) error
	RecordAnswerFn  func(ctx context.Context, key domain.ItemKey, update domain.AnswerUpdate) (domain.BatchStatus, error)
	MarkCompletedFn func(ctx context.Context, id uuid.UUID, force bool) error
}

func (m *mockBatchService) Create(ctx context.Context, segments []domain.SegmentRef, cfg *domain.AnalysisConfig) (*domain.Batch, error) {
	return m.CreateFn(ctx, segments, cfg)
}

func (m *mockBatchService) Get(ctx context.Context, id uuid.UUID) (*service.BatchWithItems, error) {
	return m.GetFn(ctx, id)
}

func (m *mockBatchService) List(ctx context.Context) ([]*domain.Batch, error) {
	return m.ListFn(ctx)
}

func (m *mockBatchService) Resume(ctx context.Context, id uuid.UUID) (int, error) {
	return m.ResumeFn(ctx, id)
}

func (m *mockBatchService) RetryItem(ctx context.Context, key domain.ItemKey) error {
	return m.RetryItemFn(ctx, key)
}

func (m *mockBatchService) RecordAnswer(ctx context.Context, key domain.ItemKey, update domain.AnswerUpdate) (domain.BatchStatus, error) {
	return m.RecordAnswerFn(ctx, key, update)
}

func (m *mockBatchService) MarkCompleted(ctx context.Context, id uuid.UUID, force bool) error {
	return m.MarkCompletedFn(ctx, id, force)
}

func (m *mockBatchService) EvaluateAutoComplete(context.Context, uuid.UUID) (bool, error) {
	panic("unexpected call")
}

func (m *mockBatchService) RecoverAll(context.Context) (int, error) {
	panic("unexpected call")
}

func (m *mockBatchService) ResumeStuck(context.Context, time.Duration) (int, error) {
	panic("unexpected call")
}

func (m *mockBatchService) HandleEvent(context.Context, *events.Event) error {
	return nil
}

var _ service.BatchService = (*mockBatchService)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBatchRouter(svc service.BatchService) http.Handler {
	h := NewBatchHandler(svc, discardLogger())
	r := chi.NewRouter()
	r.Route("/api/batch", func(r chi.Router) {
		r.Post("/", h.CreateBatch)
		r.Get("/", h.ListBatches)
		r.Get("/{id}", h.GetBatch)
		r.Patch("/{id}", h.CompleteBatch)
		r.Post("/{id}/resume", h.ResumeBatch)
		r.Post("/{id}/retry", h.RetryItem)
		r.Post("/{id}/answer", h.RecordAnswer)
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
