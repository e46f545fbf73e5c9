package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/annotator-api/internal/analysis"
	"github.com/phrazzld/annotator-api/internal/api"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/events"
	"github.com/phrazzld/annotator-api/internal/platform/memory"
	"github.com/phrazzld/annotator-api/internal/service"
	"github.com/phrazzld/annotator-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type audioFetcher struct{}

func (audioFetcher) Fetch(_ context.Context, videoID, file string) ([]byte, error) {
	return []byte(videoID + "/" + file), nil
}

// newServer runs the batch API on memory stores with a real dispatcher.
func newServer(t *testing.T, analyzer analysis.Analyzer) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	items := memory.NewItemStore()
	batches := memory.NewBatchStore(items)
	emitter := events.NewInMemoryEventEmitter(logger)
	dispatcher := task.NewDispatcher(task.NewGate(2), items, audioFetcher{}, analyzer,
		task.DispatcherConfig{Emitter: emitter}, logger)
	svc, err := service.NewBatchService(batches, items, dispatcher, logger)
	require.NoError(t, err)
	emitter.RegisterHandler(svc)

	h := api.NewBatchHandler(svc, logger)
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

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, dispatcher.Stop(ctx))
	})

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	return c
}

func TestAnnotationSessionEndToEnd(t *testing.T) {
	var failures atomic.Int32
	failures.Store(1)
	analyzer := analysis.AnalyzerFunc(func(_ context.Context, audio []byte, _ string, _ *domain.AnalysisConfig) (map[string]any, error) {
		if strings.HasSuffix(string(audio), "a.wav") && failures.Add(-1) >= 0 {
			return nil, errors.New("quota exceeded")
		}
		return map[string]any{"transcript": "hello", "noise_level": "low"}, nil
	})
	c := newServer(t, analyzer)
	ctx := context.Background()

	id, err := c.CreateBatch(ctx, []domain.SegmentRef{refA, refB}, nil)
	require.NoError(t, err)

	_, err = c.CreateBatch(ctx, []domain.SegmentRef{refA}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, id, apiErr.ExistingID)

	session := NewSession(id)
	poller := NewPoller(c, session, WithInterval(10*time.Millisecond))
	defer poller.Stop()

	poller.Start(ctx)
	waitDone(t, poller)

	a, _ := session.Analysis(refA)
	assert.Equal(t, domain.AnalysisStatusError, a.Status)
	assert.Equal(t, "quota exceeded", a.Error)

	require.NoError(t, poller.Retry(ctx, refA))
	waitDone(t, poller)
	a, _ = session.Analysis(refA)
	assert.Equal(t, domain.AnalysisStatusDone, a.Status)

	for _, ref := range []domain.SegmentRef{refA, refB} {
		for _, field := range domain.DefaultAnalysisConfig().AnswerFields() {
			session.SetAnswer(ref, field, "x")
		}
		require.NoError(t, session.Save(ctx, c, ref))
		assert.Equal(t, domain.BatchStatusInProgress, session.Status(), "transcript not judged yet")

		session.SetTranscriptCorrect(ref, true)
		require.NoError(t, session.Save(ctx, c, ref))
	}
	assert.Equal(t, domain.BatchStatusCompleted, session.Status())

	batches, err := c.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, domain.BatchStatusCompleted, batches[0].Status)

	err = c.RetryItem(ctx, id, refA)
	assert.ErrorIs(t, err, ErrConflict)
}
