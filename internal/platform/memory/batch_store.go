package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/store"
)

// BatchStore keeps batches in a map guarded by a mutex.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*domain.Batch
	items   *ItemStore
	now     func() time.Time
}

var _ store.BatchStore = (*BatchStore)(nil)

// NewBatchStore creates an empty store. When items is non-nil, Delete also
// removes the batch's items, mirroring the cascading foreign key.
func NewBatchStore(items *ItemStore) *BatchStore {
	return &BatchStore{
		batches: make(map[uuid.UUID]*domain.Batch),
		items:   items,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func cloneBatch(b *domain.Batch) *domain.Batch {
	c := *b
	c.Segments = append([]domain.SegmentRef(nil), b.Segments...)
	if b.Config != nil {
		cfg := *b.Config
		cfg.Params.SafetySettings = append([]domain.SafetySetting(nil), b.Config.Params.SafetySettings...)
		c.Config = &cfg
	}
	return &c
}

// Create stores a copy of batch.
func (s *BatchStore) Create(_ context.Context, batch *domain.Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.ID]; exists {
		return store.ErrDuplicate
	}
	if batch.Status == domain.BatchStatusInProgress {
		for _, b := range s.batches {
			if b.Status == domain.BatchStatusInProgress {
				return store.ErrBatchInProgress
			}
		}
	}
	s.batches[batch.ID] = cloneBatch(batch)
	return nil
}

// GetByID returns a copy of the batch.
func (s *BatchStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, store.ErrBatchNotFound
	}
	return cloneBatch(b), nil
}

// List returns all batches, newest first.
func (s *BatchStore) List(_ context.Context) ([]*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// FindInProgress returns the in-progress batch.
func (s *BatchStore) FindInProgress(_ context.Context) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.batches {
		if b.Status == domain.BatchStatusInProgress {
			return cloneBatch(b), nil
		}
	}
	return nil, store.ErrBatchNotFound
}

// UpdateStatus sets the status unconditionally.
func (s *BatchStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.BatchStatus) error {
	if !status.IsValid() {
		return store.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return store.ErrBatchNotFound
	}
	if status == domain.BatchStatusInProgress && b.Status != status {
		for otherID, other := range s.batches {
			if otherID != id && other.Status == domain.BatchStatusInProgress {
				return store.ErrBatchInProgress
			}
		}
	}
	b.Status = status
	b.UpdatedAt = s.now()
	return nil
}

// CompleteIfInProgress moves an in-progress batch to completed.
func (s *BatchStore) CompleteIfInProgress(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return false, store.ErrBatchNotFound
	}
	if b.Status != domain.BatchStatusInProgress {
		return false, nil
	}
	b.Status = domain.BatchStatusCompleted
	b.UpdatedAt = s.now()
	return true, nil
}

// Delete removes the batch and, when linked, its items.
func (s *BatchStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	_, ok := s.batches[id]
	delete(s.batches, id)
	s.mu.Unlock()

	if !ok {
		return store.ErrBatchNotFound
	}
	if s.items != nil {
		s.items.deleteBatch(id)
	}
	return nil
}
