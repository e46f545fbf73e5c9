package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/events"
	"github.com/phrazzld/annotator-api/internal/platform/logger"
	"github.com/phrazzld/annotator-api/internal/store"
)

// Dispatcher starts background analysis of items.
type Dispatcher interface {
	// Dispatch starts the refs and returns how many were started.
	Dispatch(batchID uuid.UUID, refs []domain.SegmentRef, cfg *domain.AnalysisConfig) int

	// IsActive reports whether the item is running in this process.
	IsActive(key domain.ItemKey) bool
}

// BatchWithItems is a batch together with its items in creation order.
type BatchWithItems struct {
	Batch *domain.Batch
	Items []*domain.Item
}

// BatchService is the batch lifecycle controller.
type BatchService interface {
	events.EventHandler

	// Create stores a batch and its pending items and starts their analysis.
	// It fails with a *ConflictError when another batch is in progress.
	Create(ctx context.Context, segments []domain.SegmentRef, cfg *domain.AnalysisConfig) (*domain.Batch, error)

	// Get returns the batch with its items, completing it first if the
	// completion predicate holds.
	Get(ctx context.Context, id uuid.UUID) (*BatchWithItems, error)

	// List returns all batches, newest first.
	List(ctx context.Context) ([]*domain.Batch, error)

	// Resume moves the batch's stuck processing items back to pending and
	// dispatches every pending item. It returns the number dispatched.
	Resume(ctx context.Context, id uuid.UUID) (int, error)

	// RetryItem resets one item and dispatches it again.
	RetryItem(ctx context.Context, key domain.ItemKey) error

	// RecordAnswer merges human answers into an item and returns the batch
	// status after re-evaluating completion.
	RecordAnswer(ctx context.Context, key domain.ItemKey, update domain.AnswerUpdate) (domain.BatchStatus, error)

	// MarkCompleted completes the batch. Without force it refuses while any
	// item is pending or processing.
	MarkCompleted(ctx context.Context, id uuid.UUID, force bool) error

	// EvaluateAutoComplete completes the batch when the predicate holds and
	// reports whether the batch is completed.
	EvaluateAutoComplete(ctx context.Context, id uuid.UUID) (bool, error)

	// RecoverAll resumes every in-progress batch.
	RecoverAll(ctx context.Context) (int, error)

	// ResumeStuck resumes in-progress batches whose items have been
	// processing longer than olderThan.
	ResumeStuck(ctx context.Context, olderThan time.Duration) (int, error)
}

type batchServiceImpl struct {
	batches    store.BatchStore
	items      store.ItemStore
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewBatchService creates a BatchService.
func NewBatchService(
	batches store.BatchStore,
	items store.ItemStore,
	dispatcher Dispatcher,
	logger *slog.Logger,
) (BatchService, error) {
	if batches == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "batch store cannot be nil"}
	}
	if items == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "item store cannot be nil"}
	}
	if dispatcher == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "dispatcher cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &batchServiceImpl{
		batches:    batches,
		items:      items,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "batch_service")),
	}, nil
}

func (s *batchServiceImpl) Create(
	ctx context.Context,
	segments []domain.SegmentRef,
	cfg *domain.AnalysisConfig,
) (*domain.Batch, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	batch, err := domain.NewBatch(segments, cfg)
	if err != nil {
		return nil, err
	}

	existing, err := s.batches.FindInProgress(ctx)
	switch {
	case err == nil:
		log.Info("batch creation refused, another batch is in progress",
			slog.String("existing_id", existing.ID.String()))
		return nil, &ConflictError{ExistingID: existing.ID}
	case !errors.Is(err, store.ErrBatchNotFound):
		return nil, NewBatchServiceError("create_batch", "failed to check for an in-progress batch", err)
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		if errors.Is(err, store.ErrBatchInProgress) {
			// Lost a creation race; report the winner.
			conflict := &ConflictError{}
			if winner, ferr := s.batches.FindInProgress(ctx); ferr == nil {
				conflict.ExistingID = winner.ID
			}
			return nil, conflict
		}
		return nil, NewBatchServiceError("create_batch", "failed to save batch", err)
	}

	items := make([]*domain.Item, 0, len(batch.Segments))
	for _, ref := range batch.Segments {
		items = append(items, domain.NewPendingItem(batch.ID, ref))
	}
	if err := s.items.CreateAll(ctx, items); err != nil {
		log.Error("failed to create items, removing batch",
			slog.String("error", err.Error()),
			slog.String("batch_id", batch.ID.String()))
		if derr := s.batches.Delete(context.WithoutCancel(ctx), batch.ID); derr != nil {
			log.Error("failed to remove batch after item failure",
				slog.String("error", derr.Error()),
				slog.String("batch_id", batch.ID.String()))
		}
		return nil, NewBatchServiceError("create_batch", "failed to save items", err)
	}

	started := s.dispatcher.Dispatch(batch.ID, batch.Segments, batch.Config)
	log.Info("batch created",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("segment_count", batch.SegmentCount()),
		slog.Int("dispatched", started))
	return batch, nil
}

func (s *batchServiceImpl) Get(ctx context.Context, id uuid.UUID) (*BatchWithItems, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, NewBatchServiceError("get_batch", "failed to load batch", err)
	}
	items, err := s.items.ListByBatch(ctx, id)
	if err != nil {
		return nil, NewBatchServiceError("get_batch", "failed to load items", err)
	}

	if _, err := s.completeIfDone(ctx, batch, items); err != nil {
		return nil, err
	}
	return &BatchWithItems{Batch: batch, Items: items}, nil
}

func (s *batchServiceImpl) List(ctx context.Context) ([]*domain.Batch, error) {
	batches, err := s.batches.List(ctx)
	if err != nil {
		return nil, NewBatchServiceError("list_batches", "failed to list batches", err)
	}
	if batches == nil {
		batches = []*domain.Batch{}
	}
	return batches, nil
}

func (s *batchServiceImpl) Resume(ctx context.Context, id uuid.UUID) (int, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return 0, NewBatchServiceError("resume_batch", "failed to load batch", err)
	}
	return s.resume(ctx, batch, 0)
}

// resume resets processing items not running in this process (and older
// than olderThan, when positive) and dispatches every pending item.
func (s *batchServiceImpl) resume(ctx context.Context, batch *domain.Batch, olderThan time.Duration) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("batch_id", batch.ID.String()))

	reset, err := s.resetStuck(ctx, batch.ID, olderThan)
	if err != nil {
		return 0, NewBatchServiceError("resume_batch", "failed to reset stuck items", err)
	}

	pending, err := s.items.ListByBatch(ctx, batch.ID, domain.AnalysisStatusPending)
	if err != nil {
		return 0, NewBatchServiceError("resume_batch", "failed to list pending items", err)
	}
	refs := make([]domain.SegmentRef, 0, len(pending))
	for _, item := range pending {
		refs = append(refs, item.Ref())
	}

	started := 0
	if len(refs) > 0 {
		started = s.dispatcher.Dispatch(batch.ID, refs, batch.Config)
	}
	log.Info("batch resumed",
		slog.Int64("reset", reset),
		slog.Int("pending", len(pending)),
		slog.Int("dispatched", started))
	return started, nil
}

// resetStuck moves abandoned processing items to pending. Items still
// running here are left alone so a second resume finds nothing to reset.
func (s *batchServiceImpl) resetStuck(ctx context.Context, batchID uuid.UUID, olderThan time.Duration) (int64, error) {
	processing, err := s.items.ListByBatch(ctx, batchID, domain.AnalysisStatusProcessing)
	if err != nil {
		return 0, err
	}

	var stuck []*domain.Item
	for _, item := range processing {
		if !s.dispatcher.IsActive(item.Key()) {
			stuck = append(stuck, item)
		}
	}
	if len(stuck) == 0 {
		return 0, nil
	}
	if len(stuck) == len(processing) {
		return s.items.ResetStuckToPending(ctx, batchID, olderThan)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for _, item := range stuck {
		if olderThan > 0 && !item.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.items.SetStatus(ctx, item.Key(), domain.AnalysisStatusPending); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *batchServiceImpl) RetryItem(ctx context.Context, key domain.ItemKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	batch, err := s.batches.GetByID(ctx, key.BatchID)
	if err != nil {
		return NewBatchServiceError("retry_item", "failed to load batch", err)
	}
	if batch.IsCompleted() {
		return ErrBatchCompleted
	}
	if _, err := s.items.Get(ctx, key); err != nil {
		return NewBatchServiceError("retry_item", "failed to load item", err)
	}
	if s.dispatcher.IsActive(key) {
		return ErrAnalysisInProgress
	}

	if err := s.items.ResetForRetry(ctx, key); err != nil {
		return NewBatchServiceError("retry_item", "failed to reset item", err)
	}
	s.dispatcher.Dispatch(key.BatchID, []domain.SegmentRef{key.Ref()}, batch.Config)

	logger.FromContextOrDefault(ctx, s.logger).Info("item retried",
		slog.String("batch_id", key.BatchID.String()),
		slog.String("video_id", key.VideoID),
		slog.String("segment_id", key.SegmentID))
	return nil
}

func (s *batchServiceImpl) RecordAnswer(
	ctx context.Context,
	key domain.ItemKey,
	update domain.AnswerUpdate,
) (domain.BatchStatus, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if update.IsEmpty() {
		return "", domain.NewValidationError(
			"user_answers",
			"at least one of user_answers or user_transcript_correct is required",
			domain.ErrEmptyAnswerUpdate,
		)
	}

	batch, err := s.batches.GetByID(ctx, key.BatchID)
	if err != nil {
		return "", NewBatchServiceError("record_answer", "failed to load batch", err)
	}
	if batch.IsCompleted() {
		return "", ErrBatchCompleted
	}

	if err := s.items.UpdateHumanAnswers(ctx, key, update); err != nil {
		return "", NewBatchServiceError("record_answer", "failed to save answers", err)
	}

	completed, err := s.EvaluateAutoComplete(ctx, key.BatchID)
	if err != nil {
		return "", err
	}
	if completed {
		return domain.BatchStatusCompleted, nil
	}
	return domain.BatchStatusInProgress, nil
}

func (s *batchServiceImpl) MarkCompleted(ctx context.Context, id uuid.UUID, force bool) error {
	if _, err := s.batches.GetByID(ctx, id); err != nil {
		return NewBatchServiceError("complete_batch", "failed to load batch", err)
	}

	if !force {
		running, err := s.items.ListByBatch(ctx, id, domain.AnalysisStatusPending, domain.AnalysisStatusProcessing)
		if err != nil {
			return NewBatchServiceError("complete_batch", "failed to list items", err)
		}
		if len(running) > 0 {
			return ErrAnalysisInProgress
		}
	}

	if err := s.batches.UpdateStatus(ctx, id, domain.BatchStatusCompleted); err != nil {
		return NewBatchServiceError("complete_batch", "failed to update batch", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("batch marked completed",
		slog.String("batch_id", id.String()),
		slog.Bool("force", force))
	return nil
}

func (s *batchServiceImpl) EvaluateAutoComplete(ctx context.Context, id uuid.UUID) (bool, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return false, NewBatchServiceError("evaluate_completion", "failed to load batch", err)
	}
	if batch.IsCompleted() {
		return true, nil
	}
	items, err := s.items.ListByBatch(ctx, id)
	if err != nil {
		return false, NewBatchServiceError("evaluate_completion", "failed to load items", err)
	}
	return s.completeIfDone(ctx, batch, items)
}

// completeIfDone applies the completion predicate and updates batch in
// place when it transitions.
func (s *batchServiceImpl) completeIfDone(ctx context.Context, batch *domain.Batch, items []*domain.Item) (bool, error) {
	if batch.IsCompleted() {
		return true, nil
	}
	if !domain.IsBatchComplete(items, batch.EffectiveConfig().AnswerFields()) {
		return false, nil
	}

	if _, err := s.batches.CompleteIfInProgress(ctx, batch.ID); err != nil {
		return false, NewBatchServiceError("evaluate_completion", "failed to complete batch", err)
	}
	batch.Status = domain.BatchStatusCompleted
	logger.FromContextOrDefault(ctx, s.logger).Info("batch auto-completed",
		slog.String("batch_id", batch.ID.String()))
	return true, nil
}

// HandleEvent re-evaluates completion when an item finishes analysis.
func (s *batchServiceImpl) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.EventItemFinished {
		return nil
	}
	var payload events.ItemFinishedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return NewBatchServiceError("handle_event", "failed to decode payload", err)
	}
	_, err := s.EvaluateAutoComplete(ctx, payload.BatchID)
	return err
}

func (s *batchServiceImpl) RecoverAll(ctx context.Context) (int, error) {
	batches, err := s.batches.List(ctx)
	if err != nil {
		return 0, NewBatchServiceError("recover", "failed to list batches", err)
	}

	total := 0
	for _, batch := range batches {
		if batch.IsCompleted() {
			continue
		}
		n, err := s.resume(ctx, batch, 0)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *batchServiceImpl) ResumeStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.items.ListStuckBatchIDs(ctx, olderThan)
	if err != nil {
		return 0, NewBatchServiceError("resume_stuck", "failed to find stuck items", err)
	}

	total := 0
	for _, id := range ids {
		batch, err := s.batches.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrBatchNotFound) {
				continue
			}
			return total, NewBatchServiceError("resume_stuck", "failed to load batch", err)
		}
		if batch.IsCompleted() {
			continue
		}
		n, err := s.resume(ctx, batch, olderThan)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
