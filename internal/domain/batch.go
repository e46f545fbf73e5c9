package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

// A batch starts in progress and ends completed. Completed is terminal.
const (
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
)

// IsValid reports whether s is a known batch status.
func (s BatchStatus) IsValid() bool {
	return s == BatchStatusInProgress || s == BatchStatusCompleted
}

// SegmentRef identifies one audio segment in the object store.
type SegmentRef struct {
	VideoID   string `json:"video_id"   validate:"required"`
	SegmentID string `json:"segment_id" validate:"required"`
}

// Batch is one annotation session over an ordered list of segments.
type Batch struct {
	ID        uuid.UUID       `json:"id"`
	Segments  []SegmentRef    `json:"segments"`
	Config    *AnalysisConfig `json:"gemini_config"`
	Status    BatchStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewBatch creates an in-progress batch with a fresh ID.
// A nil config means the default analysis configuration applies.
func NewBatch(segments []SegmentRef, cfg *AnalysisConfig) (*Batch, error) {
	now := time.Now().UTC()
	b := &Batch{
		ID:        uuid.New(),
		Segments:  segments,
		Config:    cfg,
		Status:    BatchStatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the segment list and the optional analysis config.
func (b *Batch) Validate() error {
	if b.ID == uuid.Nil {
		return NewValidationError("id", "batch ID cannot be empty", ErrInvalidID)
	}
	if len(b.Segments) == 0 {
		return NewValidationError("segments", ErrEmptySegments.Error(), ErrEmptySegments)
	}

	seen := make(map[SegmentRef]struct{}, len(b.Segments))
	for _, ref := range b.Segments {
		if ref.VideoID == "" || ref.SegmentID == "" {
			return NewValidationError("segments", ErrEmptySegmentRef.Error(), ErrEmptySegmentRef)
		}
		if _, dup := seen[ref]; dup {
			return NewValidationError(
				"segments",
				ErrDuplicateSegment.Error()+": "+ref.VideoID+"/"+ref.SegmentID,
				ErrDuplicateSegment,
			)
		}
		seen[ref] = struct{}{}
	}

	if !b.Status.IsValid() {
		return NewValidationError("status", ErrInvalidBatchStatus.Error(), ErrInvalidBatchStatus)
	}

	if b.Config != nil {
		if err := b.Config.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SegmentCount is the number of segments, and therefore items, in the batch.
func (b *Batch) SegmentCount() int {
	return len(b.Segments)
}

// IsCompleted reports whether the batch has reached its terminal state.
func (b *Batch) IsCompleted() bool {
	return b.Status == BatchStatusCompleted
}

// EffectiveConfig returns the batch's config, or the default when none was given.
func (b *Batch) EffectiveConfig() *AnalysisConfig {
	if b.Config == nil {
		return DefaultAnalysisConfig()
	}
	return b.Config
}
