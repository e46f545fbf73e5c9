package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
)

// ItemStore defines persistence for batch items. Every write that changes
// the analysis status sets the dependent result and error fields in the
// same statement, so readers never see a half-written transition.
type ItemStore interface {
	// CreateAll inserts the items of a new batch. Either all items are
	// stored or none are.
	CreateAll(ctx context.Context, items []*domain.Item) error

	// Get retrieves one item. Returns ErrItemNotFound if it does not exist.
	Get(ctx context.Context, key domain.ItemKey) (*domain.Item, error)

	// ListByBatch returns the items of a batch in creation order, optionally
	// filtered to the given statuses.
	ListByBatch(ctx context.Context, batchID uuid.UUID, statuses ...domain.AnalysisStatus) ([]*domain.Item, error)

	// SetStatus sets pending or processing and clears result and error.
	SetStatus(ctx context.Context, key domain.ItemKey, status domain.AnalysisStatus) error

	// CompleteWithResult sets done with the given result and clears the error.
	CompleteWithResult(ctx context.Context, key domain.ItemKey, result map[string]any) error

	// CompleteWithError sets error with the given message and clears the result.
	CompleteWithError(ctx context.Context, key domain.ItemKey, message string) error

	// ResetForRetry sets pending and clears result and error.
	ResetForRetry(ctx context.Context, key domain.ItemKey) error

	// UpdateHumanAnswers merges the update into the human-answer fields
	// without touching the analysis fields.
	UpdateHumanAnswers(ctx context.Context, key domain.ItemKey, update domain.AnswerUpdate) error

	// ResetStuckToPending moves processing items of a batch back to pending
	// and returns how many were reset. With olderThan > 0 only items whose
	// last update is older than that are reset.
	ResetStuckToPending(ctx context.Context, batchID uuid.UUID, olderThan time.Duration) (int64, error)

	// ListStuckBatchIDs returns the batches holding processing items whose
	// last update is older than olderThan.
	ListStuckBatchIDs(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error)
}
