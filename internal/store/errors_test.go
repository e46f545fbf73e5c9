package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		notFound  bool
		duplicate bool
	}{
		{"nil", nil, false, false},
		{"generic", errors.New("some error"), false, false},
		{"not found", ErrNotFound, true, false},
		{"batch not found", ErrBatchNotFound, true, false},
		{"wrapped item not found", fmt.Errorf("load: %w", ErrItemNotFound), true, false},
		{"in-progress conflict", ErrBatchInProgress, false, true},
		{"duplicate item", fmt.Errorf("insert: %w", ErrDuplicateItem), false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.notFound, IsNotFoundError(tc.err))
			assert.Equal(t, tc.duplicate, IsDuplicateError(tc.err))
		})
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStoreError("item", "update", "failed to set status", cause)

	assert.Equal(t, "update operation on item failed: failed to set status: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NewStoreError("batch", "delete", "no rows", nil)
	assert.Equal(t, "delete operation on batch failed: no rows", bare.Error())
}
