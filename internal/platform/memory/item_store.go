package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/store"
)

// ItemStore keeps items per batch in insertion order.
type ItemStore struct {
	mu      sync.RWMutex
	byBatch map[uuid.UUID][]*domain.Item
	now     func() time.Time
}

var _ store.ItemStore = (*ItemStore)(nil)

// NewItemStore creates an empty item store.
func NewItemStore() *ItemStore {
	return &ItemStore{
		byBatch: make(map[uuid.UUID][]*domain.Item),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for updated_at stamps.
func (s *ItemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func cloneItem(i *domain.Item) *domain.Item {
	c := *i
	c.UserAnswers = cloneMap(i.UserAnswers)
	c.Result = cloneMap(i.Result)
	if i.TranscriptCorrect != nil {
		v := *i.TranscriptCorrect
		c.TranscriptCorrect = &v
	}
	if i.Error != nil {
		v := *i.Error
		c.Error = &v
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// find must be called with the lock held.
func (s *ItemStore) find(key domain.ItemKey) *domain.Item {
	for _, item := range s.byBatch[key.BatchID] {
		if item.VideoID == key.VideoID && item.SegmentID == key.SegmentID {
			return item
		}
	}
	return nil
}

// CreateAll inserts all items or none.
func (s *ItemStore) CreateAll(_ context.Context, items []*domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[domain.ItemKey]struct{}, len(items))
	for _, item := range items {
		if err := item.CheckConsistency(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		key := item.Key()
		if _, dup := seen[key]; dup || s.find(key) != nil {
			return store.ErrDuplicateItem
		}
		seen[key] = struct{}{}
	}

	for _, item := range items {
		c := cloneItem(item)
		if c.UserAnswers == nil {
			c.UserAnswers = map[string]any{}
		}
		s.byBatch[item.BatchID] = append(s.byBatch[item.BatchID], c)
	}
	return nil
}

// Get returns a copy of one item.
func (s *ItemStore) Get(_ context.Context, key domain.ItemKey) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.find(key)
	if item == nil {
		return nil, store.ErrItemNotFound
	}
	return cloneItem(item), nil
}

// ListByBatch returns copies of the batch's items in insertion order.
func (s *ItemStore) ListByBatch(
	_ context.Context,
	batchID uuid.UUID,
	statuses ...domain.AnalysisStatus,
) ([]*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Item, 0, len(s.byBatch[batchID]))
	for _, item := range s.byBatch[batchID] {
		if len(statuses) > 0 && !containsStatus(statuses, item.Status) {
			continue
		}
		out = append(out, cloneItem(item))
	}
	return out, nil
}

func containsStatus(statuses []domain.AnalysisStatus, s domain.AnalysisStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// update applies fn to the stored item under the write lock.
func (s *ItemStore) update(key domain.ItemKey, fn func(item *domain.Item)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(key)
	if item == nil {
		return store.ErrItemNotFound
	}
	fn(item)
	item.UpdatedAt = s.now()
	return nil
}

// SetStatus sets pending or processing and clears result and error.
func (s *ItemStore) SetStatus(_ context.Context, key domain.ItemKey, status domain.AnalysisStatus) error {
	if status != domain.AnalysisStatusPending && status != domain.AnalysisStatusProcessing {
		return fmt.Errorf("%w: SetStatus accepts pending or processing, got %q", store.ErrInvalidEntity, status)
	}
	return s.update(key, func(item *domain.Item) {
		item.Status = status
		item.Result = nil
		item.Error = nil
	})
}

// CompleteWithResult sets done with result.
func (s *ItemStore) CompleteWithResult(_ context.Context, key domain.ItemKey, result map[string]any) error {
	if result == nil {
		return fmt.Errorf("%w: result cannot be nil", store.ErrInvalidEntity)
	}
	return s.update(key, func(item *domain.Item) {
		item.Status = domain.AnalysisStatusDone
		item.Result = cloneMap(result)
		item.Error = nil
	})
}

// CompleteWithError sets error with message.
func (s *ItemStore) CompleteWithError(_ context.Context, key domain.ItemKey, message string) error {
	return s.update(key, func(item *domain.Item) {
		msg := message
		item.Status = domain.AnalysisStatusError
		item.Result = nil
		item.Error = &msg
	})
}

// ResetForRetry sets pending and clears result and error.
func (s *ItemStore) ResetForRetry(ctx context.Context, key domain.ItemKey) error {
	return s.SetStatus(ctx, key, domain.AnalysisStatusPending)
}

// UpdateHumanAnswers merges the update into the human fields.
func (s *ItemStore) UpdateHumanAnswers(_ context.Context, key domain.ItemKey, update domain.AnswerUpdate) error {
	return s.update(key, func(item *domain.Item) {
		update.Apply(item)
	})
}

// ResetStuckToPending moves processing items of the batch back to pending.
func (s *ItemStore) ResetStuckToPending(_ context.Context, batchID uuid.UUID, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for _, item := range s.byBatch[batchID] {
		if item.Status != domain.AnalysisStatusProcessing {
			continue
		}
		if olderThan > 0 && !item.UpdatedAt.Before(now.Add(-olderThan)) {
			continue
		}
		item.Status = domain.AnalysisStatusPending
		item.Result = nil
		item.Error = nil
		item.UpdatedAt = now
		n++
	}
	return n, nil
}

// ListStuckBatchIDs returns batches with processing items older than olderThan.
func (s *ItemStore) ListStuckBatchIDs(_ context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-olderThan)
	var ids []uuid.UUID
	for batchID, items := range s.byBatch {
		for _, item := range items {
			if item.Status == domain.AnalysisStatusProcessing && item.UpdatedAt.Before(cutoff) {
				ids = append(ids, batchID)
				break
			}
		}
	}
	return ids, nil
}

func (s *ItemStore) deleteBatch(batchID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byBatch, batchID)
}
