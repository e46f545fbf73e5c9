package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func TestIsItemComplete(t *testing.T) {
	t.Parallel()

	fields := []string{"noise_level", "word_cutoff"}
	fullAnswers := map[string]any{"noise_level": "low", "word_cutoff": false}

	tests := []struct {
		name string
		item *Item
		want bool
	}{
		{
			name: "pending analysis",
			item: &Item{Status: AnalysisStatusPending, UserAnswers: fullAnswers},
			want: false,
		},
		{
			name: "processing analysis",
			item: &Item{Status: AnalysisStatusProcessing, UserAnswers: fullAnswers},
			want: false,
		},
		{
			name: "done without answers",
			item: &Item{Status: AnalysisStatusDone, Result: map[string]any{}, UserAnswers: map[string]any{}},
			want: false,
		},
		{
			name: "done with partial answers",
			item: &Item{
				Status:      AnalysisStatusDone,
				Result:      map[string]any{},
				UserAnswers: map[string]any{"noise_level": "low"},
			},
			want: false,
		},
		{
			name: "done with all answers and no transcript",
			item: &Item{Status: AnalysisStatusDone, Result: map[string]any{"noise_level": "low"}, UserAnswers: fullAnswers},
			want: true,
		},
		{
			name: "transcript not judged",
			item: &Item{
				Status:      AnalysisStatusDone,
				Result:      map[string]any{"transcript": "namaste"},
				UserAnswers: fullAnswers,
			},
			want: false,
		},
		{
			name: "transcript judged incorrect",
			item: &Item{
				Status:            AnalysisStatusDone,
				Result:            map[string]any{"transcript": "namaste"},
				UserAnswers:       fullAnswers,
				TranscriptCorrect: boolPtr(false),
			},
			want: true,
		},
		{
			name: "non-string transcript needs no judgment",
			item: &Item{
				Status:      AnalysisStatusDone,
				Result:      map[string]any{"transcript": 42.0},
				UserAnswers: fullAnswers,
			},
			want: true,
		},
		{
			name: "error item with answers",
			item: &Item{Status: AnalysisStatusError, Error: strPtr("quota exceeded"), UserAnswers: fullAnswers},
			want: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsItemComplete(tc.item, fields))
		})
	}
}

func TestIsItemCompleteWithoutConfiguredFields(t *testing.T) {
	t.Parallel()

	item := &Item{Status: AnalysisStatusError, Error: strPtr("x"), UserAnswers: map[string]any{}}
	assert.False(t, IsItemComplete(item, nil), "an empty answer set is never complete")

	item.UserAnswers["anything"] = "yes"
	assert.True(t, IsItemComplete(item, nil))
}

func TestIsBatchComplete(t *testing.T) {
	t.Parallel()

	done := &Item{Status: AnalysisStatusDone, Result: map[string]any{}, UserAnswers: map[string]any{"a": 1}}
	pending := &Item{Status: AnalysisStatusPending, UserAnswers: map[string]any{"a": 1}}

	assert.False(t, IsBatchComplete(nil, nil))
	assert.True(t, IsBatchComplete([]*Item{done}, []string{"a"}))
	assert.False(t, IsBatchComplete([]*Item{done, pending}, []string{"a"}))
}
