package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
)

// BatchStore defines persistence for batch records.
type BatchStore interface {
	// Create saves a new batch. Returns ErrBatchInProgress if the batch is
	// in progress and another in-progress batch already exists.
	Create(ctx context.Context, batch *domain.Batch) error

	// GetByID retrieves a batch. Returns ErrBatchNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error)

	// List returns all batches, newest first.
	List(ctx context.Context) ([]*domain.Batch, error)

	// FindInProgress returns the in-progress batch, or ErrBatchNotFound.
	FindInProgress(ctx context.Context) (*domain.Batch, error)

	// UpdateStatus sets the batch status unconditionally.
	// Returns ErrBatchNotFound if the batch does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus) error

	// CompleteIfInProgress moves an in-progress batch to completed and
	// reports whether this call made the transition. It never moves a
	// completed batch back.
	CompleteIfInProgress(ctx context.Context, id uuid.UUID) (bool, error)

	// Delete removes a batch and its items.
	// Returns ErrBatchNotFound if the batch does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
