package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewBatch(t *testing.T) {
	t.Parallel()

	segments := []SegmentRef{{VideoID: "v1", SegmentID: "s1"}, {VideoID: "v1", SegmentID: "s2"}}
	batch, err := NewBatch(segments, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if batch.ID == uuid.Nil {
		t.Error("Expected non-nil UUID")
	}
	if batch.Status != BatchStatusInProgress {
		t.Errorf("Expected status %s, got %s", BatchStatusInProgress, batch.Status)
	}
	if batch.SegmentCount() != 2 {
		t.Errorf("Expected segment count 2, got %d", batch.SegmentCount())
	}
	if batch.EffectiveConfig().Prompt != DefaultPrompt {
		t.Error("Expected default config when none is given")
	}
}

func TestNewBatchValidation(t *testing.T) {
	t.Parallel()

	badLevel := &AnalysisConfig{Params: AnalysisParams{ThinkingLevel: "extreme"}}

	tests := []struct {
		name     string
		segments []SegmentRef
		cfg      *AnalysisConfig
		want     error
	}{
		{"empty list", nil, nil, ErrEmptySegments},
		{"missing video id", []SegmentRef{{SegmentID: "s1"}}, nil, ErrEmptySegmentRef},
		{"missing segment id", []SegmentRef{{VideoID: "v1"}}, nil, ErrEmptySegmentRef},
		{
			"duplicate segment",
			[]SegmentRef{{VideoID: "v1", SegmentID: "s1"}, {VideoID: "v1", SegmentID: "s1"}},
			nil,
			ErrDuplicateSegment,
		},
		{"bad config", []SegmentRef{{VideoID: "v1", SegmentID: "s1"}}, badLevel, ErrInvalidThinkingLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewBatch(tc.segments, tc.cfg)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected error to wrap ErrValidation, got %v", err)
			}
			if !IsValidationError(err) {
				t.Errorf("Expected a ValidationError, got %T", err)
			}
		})
	}
}
