package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/store"
)

// Sentinel errors of the batch service. The API layer maps them to status
// codes.
var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrItemNotFound  = errors.New("annotation not found")

	// ErrBatchCompleted rejects writes to a completed batch.
	ErrBatchCompleted = errors.New("batch is completed")

	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("another batch is in progress")

	// ErrAnalysisInProgress rejects operations that need the item's or the
	// batch's analysis to be settled.
	ErrAnalysisInProgress = errors.New("analysis still in progress")
)

// ConflictError is returned by Create when a batch is already in progress.
type ConflictError struct {
	ExistingID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict.Error(), e.ExistingID)
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// BatchServiceError wraps unexpected failures with the operation name.
type BatchServiceError struct {
	Operation string
	Message   string
	Err       error
}

func (e *BatchServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("batch service %s failed: %s", e.Operation, e.Message)
}

func (e *BatchServiceError) Unwrap() error {
	return e.Err
}

// NewBatchServiceError maps store not-found errors to the service sentinels
// and wraps everything else.
func NewBatchServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrBatchNotFound), errors.Is(err, store.ErrBatchNotFound):
		return ErrBatchNotFound
	case errors.Is(err, ErrItemNotFound), errors.Is(err, store.ErrItemNotFound):
		return ErrItemNotFound
	}
	return &BatchServiceError{Operation: operation, Message: message, Err: err}
}
