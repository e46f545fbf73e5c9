package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/platform/logger"
	"github.com/phrazzld/annotator-api/internal/store"
)

// insertChunkSize bounds the rows per INSERT so the statement stays under
// the protocol's parameter limit.
const insertChunkSize = 1000

// ItemStore implements store.ItemStore on the annotations table.
type ItemStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.ItemStore = (*ItemStore)(nil)

// NewItemStore creates an item store on db.
func NewItemStore(db store.DBTX, logger *slog.Logger) *ItemStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemStore{
		db:     db,
		logger: logger.With(slog.String("component", "item_store")),
	}
}

const itemColumns = `batch_id, video_id, segment_id, user_answers, user_transcript_correct,
	gemini_answers, gemini_status, gemini_error, created_at, updated_at`

const itemKeyClause = `batch_id = $1 AND video_id = $2 AND segment_id = $3`

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item       domain.Item
		answers    []byte
		result     []byte
		transcript sql.NullBool
		errMsg     sql.NullString
	)
	err := row.Scan(
		&item.BatchID, &item.VideoID, &item.SegmentID,
		&answers, &transcript, &result,
		&item.Status, &errMsg, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.UserAnswers = map[string]any{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &item.UserAnswers); err != nil {
			return nil, fmt.Errorf("failed to decode user answers: %w", err)
		}
		if item.UserAnswers == nil {
			item.UserAnswers = map[string]any{}
		}
	}
	if len(result) > 0 && string(result) != "null" {
		if err := json.Unmarshal(result, &item.Result); err != nil {
			return nil, fmt.Errorf("failed to decode analysis result: %w", err)
		}
	}
	if transcript.Valid {
		v := transcript.Bool
		item.TranscriptCorrect = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		item.Error = &v
	}
	return &item, nil
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// CreateAll inserts all items in one transaction.
func (s *ItemStore) CreateAll(ctx context.Context, items []*domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if err := item.CheckConsistency(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	insert := func(ctx context.Context, db store.DBTX) error {
		for start := 0; start < len(items); start += insertChunkSize {
			end := min(start+insertChunkSize, len(items))
			if err := s.insertChunk(ctx, db, items[start:end]); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if pool, ok := s.db.(*sql.DB); ok {
		err = store.RunInTransaction(ctx, pool, func(ctx context.Context, tx *sql.Tx) error {
			return insert(ctx, tx)
		})
	} else {
		err = insert(ctx, s.db)
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create items",
			slog.String("error", err.Error()),
			slog.String("batch_id", items[0].BatchID.String()),
			slog.Int("count", len(items)))
		return MapError(err)
	}
	return nil
}

func (s *ItemStore) insertChunk(ctx context.Context, db store.DBTX, items []*domain.Item) error {
	const cols = 7
	var sb strings.Builder
	sb.WriteString(`INSERT INTO annotations
		(batch_id, video_id, segment_id, user_answers, gemini_status, created_at, updated_at) VALUES `)

	args := make([]any, 0, len(items)*cols)
	for i, item := range items {
		answers, err := encodeJSON(item.UserAnswers)
		if err != nil {
			return fmt.Errorf("failed to encode user answers: %w", err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * cols
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d::jsonb, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args,
			item.BatchID, item.VideoID, item.SegmentID, answers,
			string(item.Status), item.CreatedAt, item.UpdatedAt)
	}

	_, err := db.ExecContext(ctx, sb.String(), args...)
	return err
}

// Get retrieves one item.
func (s *ItemStore) Get(ctx context.Context, key domain.ItemKey) (*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM annotations WHERE ` + itemKeyClause

	item, err := scanItem(s.db.QueryRowContext(ctx, query, key.BatchID, key.VideoID, key.SegmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		return nil, MapError(err)
	}
	return item, nil
}

// ListByBatch returns the batch's items in insertion order.
func (s *ItemStore) ListByBatch(
	ctx context.Context,
	batchID uuid.UUID,
	statuses ...domain.AnalysisStatus,
) ([]*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM annotations WHERE batch_id = $1`
	args := []any{batchID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, string(st))
		}
		query += ` AND gemini_status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list items",
			slog.String("error", err.Error()),
			slog.String("batch_id", batchID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	items := []*domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

// exec runs an UPDATE addressed by item key; args follow the three key params.
func (s *ItemStore) exec(ctx context.Context, op string, key domain.ItemKey, set string, args ...any) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `UPDATE annotations SET ` + set + ` WHERE ` + itemKeyClause
	params := append([]any{key.BatchID, key.VideoID, key.SegmentID}, args...)

	result, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		log.Error("failed to update item",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.String("batch_id", key.BatchID.String()),
			slog.String("video_id", key.VideoID),
			slog.String("segment_id", key.SegmentID))
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrItemNotFound); err != nil {
		return err
	}

	log.Debug("item updated",
		slog.String("op", op),
		slog.String("batch_id", key.BatchID.String()),
		slog.String("video_id", key.VideoID),
		slog.String("segment_id", key.SegmentID))
	return nil
}

// SetStatus sets pending or processing and clears result and error.
func (s *ItemStore) SetStatus(ctx context.Context, key domain.ItemKey, status domain.AnalysisStatus) error {
	if status != domain.AnalysisStatusPending && status != domain.AnalysisStatusProcessing {
		return fmt.Errorf("%w: SetStatus accepts pending or processing, got %q", store.ErrInvalidEntity, status)
	}
	return s.exec(ctx, "set_status", key,
		`gemini_status = $4, gemini_answers = NULL, gemini_error = NULL, updated_at = $5`,
		string(status), time.Now().UTC())
}

// CompleteWithResult sets done with the result.
func (s *ItemStore) CompleteWithResult(ctx context.Context, key domain.ItemKey, result map[string]any) error {
	if result == nil {
		return fmt.Errorf("%w: result cannot be nil", store.ErrInvalidEntity)
	}
	raw, err := encodeJSON(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}
	return s.exec(ctx, "complete_result", key,
		`gemini_status = $4, gemini_answers = $5::jsonb, gemini_error = NULL, updated_at = $6`,
		string(domain.AnalysisStatusDone), raw, time.Now().UTC())
}

// CompleteWithError sets error with the message.
func (s *ItemStore) CompleteWithError(ctx context.Context, key domain.ItemKey, message string) error {
	return s.exec(ctx, "complete_error", key,
		`gemini_status = $4, gemini_answers = NULL, gemini_error = $5, updated_at = $6`,
		string(domain.AnalysisStatusError), message, time.Now().UTC())
}

// ResetForRetry sets pending and clears result and error.
func (s *ItemStore) ResetForRetry(ctx context.Context, key domain.ItemKey) error {
	return s.SetStatus(ctx, key, domain.AnalysisStatusPending)
}

// UpdateHumanAnswers merges answer keys with jsonb || and sets the
// transcript flag when given.
func (s *ItemStore) UpdateHumanAnswers(ctx context.Context, key domain.ItemKey, update domain.AnswerUpdate) error {
	var answers sql.NullString
	if len(update.UserAnswers) > 0 {
		raw, err := encodeJSON(update.UserAnswers)
		if err != nil {
			return fmt.Errorf("failed to encode user answers: %w", err)
		}
		answers = sql.NullString{String: raw, Valid: true}
	}
	var transcript sql.NullBool
	if update.TranscriptCorrect != nil {
		transcript = sql.NullBool{Bool: *update.TranscriptCorrect, Valid: true}
	}

	return s.exec(ctx, "update_answers", key,
		`user_answers = CASE WHEN $4::jsonb IS NULL THEN user_answers ELSE user_answers || $4::jsonb END,
		user_transcript_correct = COALESCE($5, user_transcript_correct),
		updated_at = $6`,
		answers, transcript, time.Now().UTC())
}

// ResetStuckToPending moves processing items back to pending.
func (s *ItemStore) ResetStuckToPending(ctx context.Context, batchID uuid.UUID, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	query := `
		UPDATE annotations
		SET gemini_status = $1, gemini_answers = NULL, gemini_error = NULL, updated_at = $2
		WHERE batch_id = $3 AND gemini_status = $4
	`
	args := []any{string(domain.AnalysisStatusPending), now, batchID, string(domain.AnalysisStatusProcessing)}
	if olderThan > 0 {
		query += ` AND updated_at < $5`
		args = append(args, now.Add(-olderThan))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to reset stuck items",
			slog.String("error", err.Error()),
			slog.String("batch_id", batchID.String()))
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListStuckBatchIDs returns batches with old processing items.
func (s *ItemStore) ListStuckBatchIDs(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT batch_id FROM annotations
		WHERE gemini_status = $1 AND updated_at < $2
	`
	rows, err := s.db.QueryContext(ctx, query,
		string(domain.AnalysisStatusProcessing),
		time.Now().UTC().Add(-olderThan))
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
