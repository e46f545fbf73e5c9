package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus is the automated-analysis state of an item.
type AnalysisStatus string

// Item analysis lifecycle: pending -> processing -> done | error.
// Retry moves error back to pending; resume moves processing back to pending.
const (
	AnalysisStatusPending    AnalysisStatus = "pending"
	AnalysisStatusProcessing AnalysisStatus = "processing"
	AnalysisStatusDone       AnalysisStatus = "done"
	AnalysisStatusError      AnalysisStatus = "error"
)

// IsValid reports whether s is a known analysis status.
func (s AnalysisStatus) IsValid() bool {
	switch s {
	case AnalysisStatusPending, AnalysisStatusProcessing, AnalysisStatusDone, AnalysisStatusError:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition will happen.
func (s AnalysisStatus) IsTerminal() bool {
	return s == AnalysisStatusDone || s == AnalysisStatusError
}

// TranscriptField is the result key holding the model's transcript. It is
// judged through TranscriptCorrect rather than as an answer field.
const TranscriptField = "transcript"

// ItemKey addresses one item inside a batch.
type ItemKey struct {
	BatchID   uuid.UUID
	VideoID   string
	SegmentID string
}

// Ref returns the segment part of the key.
func (k ItemKey) Ref() SegmentRef {
	return SegmentRef{VideoID: k.VideoID, SegmentID: k.SegmentID}
}

// Validate checks that every part of the key is present.
func (k ItemKey) Validate() error {
	if k.BatchID == uuid.Nil {
		return NewValidationError("batch_id", "batch ID cannot be empty", ErrInvalidID)
	}
	if k.VideoID == "" || k.SegmentID == "" {
		return NewValidationError("segment", ErrEmptySegmentRef.Error(), ErrEmptySegmentRef)
	}
	return nil
}

// Item is the per-segment record inside a batch. The analysis fields
// (Status, Result, Error) are written by the dispatcher; the human fields
// (UserAnswers, TranscriptCorrect) are written by the annotator.
type Item struct {
	BatchID           uuid.UUID      `json:"batch_id"`
	VideoID           string         `json:"video_id"`
	SegmentID         string         `json:"segment_id"`
	UserAnswers       map[string]any `json:"user_answers"`
	TranscriptCorrect *bool          `json:"user_transcript_correct"`
	Result            map[string]any `json:"gemini_answers"`
	Status            AnalysisStatus `json:"gemini_status"`
	Error             *string        `json:"gemini_error"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewPendingItem creates the initial item for a segment of a batch.
func NewPendingItem(batchID uuid.UUID, ref SegmentRef) *Item {
	now := time.Now().UTC()
	return &Item{
		BatchID:     batchID,
		VideoID:     ref.VideoID,
		SegmentID:   ref.SegmentID,
		UserAnswers: map[string]any{},
		Status:      AnalysisStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Key returns the item's address.
func (i *Item) Key() ItemKey {
	return ItemKey{BatchID: i.BatchID, VideoID: i.VideoID, SegmentID: i.SegmentID}
}

// Ref returns the item's segment reference.
func (i *Item) Ref() SegmentRef {
	return SegmentRef{VideoID: i.VideoID, SegmentID: i.SegmentID}
}

// HasTranscript reports whether the analysis result carries a string transcript.
func (i *Item) HasTranscript() bool {
	if i.Result == nil {
		return false
	}
	_, ok := i.Result[TranscriptField].(string)
	return ok
}

// CheckConsistency verifies the status/result/error invariant:
// done has a result and no error, error has an error and no result,
// pending and processing have neither.
func (i *Item) CheckConsistency() error {
	if !i.Status.IsValid() {
		return ErrInvalidItemStatus
	}
	hasResult := i.Result != nil
	hasError := i.Error != nil
	switch i.Status {
	case AnalysisStatusDone:
		if !hasResult || hasError {
			return ErrInconsistentItem
		}
	case AnalysisStatusError:
		if hasResult || !hasError {
			return ErrInconsistentItem
		}
	default:
		if hasResult || hasError {
			return ErrInconsistentItem
		}
	}
	return nil
}

// AnswerUpdate is a partial write of the human-answer fields. Nil fields
// are left unchanged; UserAnswers keys are merged into the stored set.
type AnswerUpdate struct {
	UserAnswers       map[string]any
	TranscriptCorrect *bool
}

// IsEmpty reports whether the update carries no recognized field.
func (u AnswerUpdate) IsEmpty() bool {
	return len(u.UserAnswers) == 0 && u.TranscriptCorrect == nil
}

// Apply merges the update into the item's human fields.
func (u AnswerUpdate) Apply(item *Item) {
	if len(u.UserAnswers) > 0 {
		if item.UserAnswers == nil {
			item.UserAnswers = make(map[string]any, len(u.UserAnswers))
		}
		for k, v := range u.UserAnswers {
			item.UserAnswers[k] = v
		}
	}
	if u.TranscriptCorrect != nil {
		v := *u.TranscriptCorrect
		item.TranscriptCorrect = &v
	}
}
