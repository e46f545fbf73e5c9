package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/annotator-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{
			"second in-progress batch",
			&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: singleInProgressIndex},
			store.ErrBatchInProgress,
		},
		{
			"duplicate segment",
			&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: batchSegmentKey},
			store.ErrDuplicateItem,
		},
		{"other unique", &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "batch_runs_pkey"}, store.ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: foreignKeyViolationCode}, store.ErrInvalidEntity},
		{"status invariant", &pgconn.PgError{Code: checkViolationCode, ConstraintName: "annotations_status_fields_check"}, store.ErrInvalidEntity},
		{"not null", &pgconn.PgError{Code: notNullViolationCode, ColumnName: "video_id"}, store.ErrInvalidEntity},
		{"wrapped pg error", fmt.Errorf("exec: %w", &pgconn.PgError{Code: foreignKeyViolationCode}), store.ErrInvalidEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, MapError(tc.err), tc.want)
		})
	}

	assert.NoError(t, MapError(nil))
	plain := errors.New("connection reset")
	assert.Equal(t, plain, MapError(plain))
	assert.False(t, errors.Is(MapError(&pgconn.PgError{Code: uniqueViolationCode}), store.ErrBatchInProgress))
}
