package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/platform/logger"
	"github.com/phrazzld/annotator-api/internal/store"
)

// BatchStore implements store.BatchStore on the batch_runs table.
type BatchStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.BatchStore = (*BatchStore)(nil)

// NewBatchStore creates a batch store on db. If logger is nil, slog's
// default logger is used.
func NewBatchStore(db store.DBTX, logger *slog.Logger) *BatchStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchStore{
		db:     db,
		logger: logger.With(slog.String("component", "batch_store")),
	}
}

const batchColumns = `id, segments, segment_count, gemini_config, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*domain.Batch, error) {
	var (
		b        domain.Batch
		segments []byte
		cfg      []byte
		count    int
	)
	if err := row.Scan(&b.ID, &segments, &count, &cfg, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(segments, &b.Segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments of batch %s: %w", b.ID, err)
	}
	if len(cfg) > 0 && string(cfg) != "null" {
		b.Config = &domain.AnalysisConfig{}
		if err := json.Unmarshal(cfg, b.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config of batch %s: %w", b.ID, err)
		}
	}
	return &b, nil
}

// Create inserts a batch row.
func (s *BatchStore) Create(ctx context.Context, batch *domain.Batch) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := batch.Validate(); err != nil {
		log.Warn("batch validation failed during create",
			slog.String("error", err.Error()),
			slog.String("batch_id", batch.ID.String()))
		return err
	}

	segments, err := json.Marshal(batch.Segments)
	if err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}
	var cfg sql.NullString
	if batch.Config != nil {
		raw, err := json.Marshal(batch.Config)
		if err != nil {
			return fmt.Errorf("failed to encode analysis config: %w", err)
		}
		cfg = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO batch_runs (` + batchColumns + `)
		VALUES ($1, $2::jsonb, $3, $4::jsonb, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		batch.ID,
		string(segments),
		batch.SegmentCount(),
		cfg,
		string(batch.Status),
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrBatchInProgress) {
			log.Warn("another batch is already in progress",
				slog.String("batch_id", batch.ID.String()))
			return mapped
		}
		log.Error("failed to create batch",
			slog.String("error", err.Error()),
			slog.String("batch_id", batch.ID.String()))
		return mapped
	}

	log.Debug("batch created",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("segment_count", batch.SegmentCount()))
	return nil
}

// GetByID retrieves one batch.
func (s *BatchStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_runs WHERE id = $1`

	b, err := scanBatch(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrBatchNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get batch",
			slog.String("error", err.Error()),
			slog.String("batch_id", id.String()))
		return nil, MapError(err)
	}
	return b, nil
}

// List returns all batches, newest first.
func (s *BatchStore) List(ctx context.Context) ([]*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_runs ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list batches",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var batches []*domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return batches, nil
}

// FindInProgress returns the in-progress batch.
func (s *BatchStore) FindInProgress(ctx context.Context) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_runs WHERE status = $1 LIMIT 1`

	b, err := scanBatch(s.db.QueryRowContext(ctx, query, string(domain.BatchStatusInProgress)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrBatchNotFound
		}
		return nil, MapError(err)
	}
	return b, nil
}

// UpdateStatus sets the status unconditionally.
func (s *BatchStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %s", store.ErrInvalidEntity, domain.ErrInvalidBatchStatus)
	}

	query := `UPDATE batch_runs SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update batch status",
			slog.String("error", err.Error()),
			slog.String("batch_id", id.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrBatchNotFound)
}

// CompleteIfInProgress performs the guarded in_progress -> completed move.
func (s *BatchStore) CompleteIfInProgress(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE batch_runs SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.BatchStatusCompleted),
		time.Now().UTC(),
		id,
		string(domain.BatchStatusInProgress),
	)
	if err != nil {
		return false, MapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	// Distinguish "already completed" from "no such batch".
	if _, err := s.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// Delete removes a batch; its items go with it through the cascade.
func (s *BatchStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM batch_runs WHERE id = $1`, id)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to delete batch",
			slog.String("error", err.Error()),
			slog.String("batch_id", id.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrBatchNotFound)
}
