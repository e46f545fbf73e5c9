package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/domain"
)

// SegmentRequest names one segment in a request body.
type SegmentRequest struct {
	VideoID   string `json:"video_id"   validate:"required"`
	SegmentID string `json:"segment_id" validate:"required"`
}

// Ref converts the request to a domain reference.
func (s SegmentRequest) Ref() domain.SegmentRef {
	return domain.SegmentRef{VideoID: s.VideoID, SegmentID: s.SegmentID}
}

// CreateBatchRequest is the body of POST /api/batch.
type CreateBatchRequest struct {
	Segments     []SegmentRequest       `json:"segments"      validate:"required,min=1,dive"`
	GeminiConfig *domain.AnalysisConfig `json:"gemini_config"`
}

// CreateBatchResponse is returned by POST /api/batch.
type CreateBatchResponse struct {
	ID uuid.UUID `json:"id"`
}

// BatchResponse is one batch as listed by GET /api/batch.
type BatchResponse struct {
	ID           uuid.UUID              `json:"id"`
	Segments     []domain.SegmentRef    `json:"segments"`
	SegmentCount int                    `json:"segment_count"`
	GeminiConfig *domain.AnalysisConfig `json:"gemini_config"`
	Status       domain.BatchStatus     `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// AnnotationResponse is one item of a batch.
type AnnotationResponse struct {
	BatchID               uuid.UUID             `json:"batch_id"`
	VideoID               string                `json:"video_id"`
	SegmentID             string                `json:"segment_id"`
	UserAnswers           map[string]any        `json:"user_answers"`
	UserTranscriptCorrect *bool                 `json:"user_transcript_correct"`
	GeminiAnswers         map[string]any        `json:"gemini_answers"`
	GeminiStatus          domain.AnalysisStatus `json:"gemini_status"`
	GeminiError           *string               `json:"gemini_error"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// BatchDetailResponse is returned by GET /api/batch/{id}.
type BatchDetailResponse struct {
	BatchResponse
	Annotations []AnnotationResponse `json:"annotations"`
}

// ResumeResponse is returned by POST /api/batch/{id}/resume.
type ResumeResponse struct {
	Resumed int `json:"resumed"`
}

// ItemRequest is the body of POST /api/batch/{id}/retry.
type ItemRequest struct {
	VideoID   string `json:"video_id"   validate:"required"`
	SegmentID string `json:"segment_id" validate:"required"`
}

// AnswerRequest is the body of POST /api/batch/{id}/answer. At least one of
// UserAnswers and UserTranscriptCorrect must be present.
type AnswerRequest struct {
	VideoID               string         `json:"video_id"                validate:"required"`
	SegmentID             string         `json:"segment_id"              validate:"required"`
	UserAnswers           map[string]any `json:"user_answers"`
	UserTranscriptCorrect *bool          `json:"user_transcript_correct"`
}

// AnswerResponse is returned by POST /api/batch/{id}/answer.
type AnswerResponse struct {
	Success     bool               `json:"success"`
	BatchStatus domain.BatchStatus `json:"batch_status"`
}

// SegmentResponse is one entry of GET /api/segments.
type SegmentResponse struct {
	VideoID   string `json:"video_id"`
	SegmentID string `json:"segment_id"`
	AudioURL  string `json:"audio_url"`
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	VideoID   string                 `json:"video_id"   validate:"required"`
	SegmentID string                 `json:"segment_id" validate:"required"`
	Config    *domain.AnalysisConfig `json:"config"`
}

func batchToResponse(b *domain.Batch) BatchResponse {
	segments := b.Segments
	if segments == nil {
		segments = []domain.SegmentRef{}
	}
	return BatchResponse{
		ID:           b.ID,
		Segments:     segments,
		SegmentCount: b.SegmentCount(),
		GeminiConfig: b.Config,
		Status:       b.Status,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

func itemToResponse(i *domain.Item) AnnotationResponse {
	answers := i.UserAnswers
	if answers == nil {
		answers = map[string]any{}
	}
	return AnnotationResponse{
		BatchID:               i.BatchID,
		VideoID:               i.VideoID,
		SegmentID:             i.SegmentID,
		UserAnswers:           answers,
		UserTranscriptCorrect: i.TranscriptCorrect,
		GeminiAnswers:         i.Result,
		GeminiStatus:          i.Status,
		GeminiError:           i.Error,
		CreatedAt:             i.CreatedAt,
		UpdatedAt:             i.UpdatedAt,
	}
}
