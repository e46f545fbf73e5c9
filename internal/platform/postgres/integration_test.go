//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("annotator"),
		tcpostgres.WithUsername("annotator"),
		tcpostgres.WithPassword("annotator"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, "up", discardLogger()))
	return db
}

func TestIntegrationLifecycle(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	batches := NewBatchStore(db, discardLogger())
	items := NewItemStore(db, discardLogger())

	refs := []domain.SegmentRef{
		{VideoID: "v1", SegmentID: "s1"},
		{VideoID: "v1", SegmentID: "s2"},
	}
	batch, err := domain.NewBatch(refs, domain.DefaultAnalysisConfig())
	require.NoError(t, err)
	require.NoError(t, batches.Create(ctx, batch))

	// Only one batch may be in progress.
	other, err := domain.NewBatch(refs, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, batches.Create(ctx, other), store.ErrBatchInProgress)

	found, err := batches.FindInProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, found.ID)
	require.NotNil(t, found.Config)
	assert.Equal(t, domain.DefaultPrompt, found.Config.Prompt)

	pending := []*domain.Item{
		domain.NewPendingItem(batch.ID, refs[0]),
		domain.NewPendingItem(batch.ID, refs[1]),
	}
	require.NoError(t, items.CreateAll(ctx, pending))
	assert.ErrorIs(t, items.CreateAll(ctx, pending[:1]), store.ErrDuplicateItem)

	k1, k2 := pending[0].Key(), pending[1].Key()
	require.NoError(t, items.SetStatus(ctx, k1, domain.AnalysisStatusProcessing))
	require.NoError(t, items.CompleteWithResult(ctx, k1, map[string]any{"transcript": "hi"}))
	require.NoError(t, items.SetStatus(ctx, k2, domain.AnalysisStatusProcessing))
	require.NoError(t, items.CompleteWithError(ctx, k2, "quota exceeded"))

	yes := true
	require.NoError(t, items.UpdateHumanAnswers(ctx, k1, domain.AnswerUpdate{
		UserAnswers: map[string]any{"noise_level": "low"},
	}))
	require.NoError(t, items.UpdateHumanAnswers(ctx, k1, domain.AnswerUpdate{
		UserAnswers:       map[string]any{"speaker_count": "1"},
		TranscriptCorrect: &yes,
	}))

	got, err := items.ListByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SegmentID)
	assert.Equal(t, domain.AnalysisStatusDone, got[0].Status)
	assert.Equal(t, map[string]any{"noise_level": "low", "speaker_count": "1"}, got[0].UserAnswers)
	require.NotNil(t, got[0].TranscriptCorrect)
	assert.True(t, *got[0].TranscriptCorrect)
	require.NotNil(t, got[1].Error)
	assert.Equal(t, "quota exceeded", *got[1].Error)
	assert.Nil(t, got[1].Result)

	errored, err := items.ListByBatch(ctx, batch.ID, domain.AnalysisStatusError)
	require.NoError(t, err)
	assert.Len(t, errored, 1)

	require.NoError(t, items.ResetForRetry(ctx, k2))
	item, err := items.Get(ctx, k2)
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisStatusPending, item.Status)
	assert.Nil(t, item.Error)

	done, err := batches.CompleteIfInProgress(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, done)
	done, err = batches.CompleteIfInProgress(ctx, batch.ID)
	require.NoError(t, err)
	assert.False(t, done)

	// A new batch is allowed once the first is completed.
	require.NoError(t, batches.Create(ctx, other))

	require.NoError(t, batches.Delete(ctx, batch.ID))
	_, err = items.Get(ctx, k1)
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestIntegrationStatusCheckConstraint(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	batch, err := domain.NewBatch([]domain.SegmentRef{{VideoID: "v", SegmentID: "s"}}, nil)
	require.NoError(t, err)
	require.NoError(t, NewBatchStore(db, discardLogger()).Create(ctx, batch))

	_, err = db.ExecContext(ctx, `
		INSERT INTO annotations (batch_id, video_id, segment_id, gemini_status, gemini_error)
		VALUES ($1, 'v', 's', 'done', 'boom')`, batch.ID)
	assert.ErrorIs(t, MapError(err), store.ErrInvalidEntity)
}

func TestIntegrationStuckItems(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	batches := NewBatchStore(db, discardLogger())
	items := NewItemStore(db, discardLogger())

	ref := domain.SegmentRef{VideoID: "v", SegmentID: "s"}
	batch, err := domain.NewBatch([]domain.SegmentRef{ref}, nil)
	require.NoError(t, err)
	require.NoError(t, batches.Create(ctx, batch))
	require.NoError(t, items.CreateAll(ctx, []*domain.Item{domain.NewPendingItem(batch.ID, ref)}))

	key := domain.ItemKey{BatchID: batch.ID, VideoID: "v", SegmentID: "s"}
	require.NoError(t, items.SetStatus(ctx, key, domain.AnalysisStatusProcessing))

	_, err = db.ExecContext(ctx, `UPDATE annotations SET updated_at = now() - interval '1 hour'`)
	require.NoError(t, err)

	ids, err := items.ListStuckBatchIDs(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{batch.ID}, ids)

	n, err := items.ResetStuckToPending(ctx, batch.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
