package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/annotator-api/internal/api/shared"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/platform/logger"
	"github.com/phrazzld/annotator-api/internal/service"
)

// BatchHandler serves the batch lifecycle endpoints under /api/batch.
type BatchHandler struct {
	service service.BatchService
	logger  *slog.Logger
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batchService service.BatchService, logger *slog.Logger) *BatchHandler {
	if batchService == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("batchService cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchHandler{
		service: batchService,
		logger:  logger.With(slog.String("component", "batch_handler")),
	}
}

// CreateBatch handles POST /api/batch. A running batch yields 409 with the
// running batch's id.
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	refs := make([]domain.SegmentRef, 0, len(req.Segments))
	for _, s := range req.Segments {
		refs = append(refs, s.Ref())
	}

	batch, err := h.service.Create(r.Context(), refs, req.GeminiConfig)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create batch")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CreateBatchResponse{ID: batch.ID})
}

// ListBatches handles GET /api/batch.
func (h *BatchHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.List(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list batches")
		return
	}

	resp := make([]BatchResponse, 0, len(batches))
	for _, b := range batches {
		resp = append(resp, batchToResponse(b))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetBatch handles GET /api/batch/{id}.
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load batch")
		return
	}

	resp := BatchDetailResponse{
		BatchResponse: batchToResponse(result.Batch),
		Annotations:   make([]AnnotationResponse, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		resp.Annotations = append(resp.Annotations, itemToResponse(item))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// CompleteBatch handles PATCH /api/batch/{id}. It answers 400 while items
// are still being analyzed unless force=true is given.
func (h *BatchHandler) CompleteBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			HandleAPIError(w, r, domain.NewValidationError("force", "must be a boolean", domain.ErrValidation), "")
			return
		}
		force = parsed
	}

	if err := h.service.MarkCompleted(r.Context(), id, force); err != nil {
		if errors.Is(err, service.ErrAnalysisInProgress) {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
				"Some annotations are still being analyzed", err)
			return
		}
		HandleAPIError(w, r, err, "Failed to complete batch")
		return
	}

	shared.RespondWithSuccess(w, r)
}

// ResumeBatch handles POST /api/batch/{id}/resume.
func (h *BatchHandler) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	n, err := h.service.Resume(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to resume batch")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("batch resume requested",
		slog.String("batch_id", id.String()),
		slog.Int("resumed", n))
	shared.RespondWithJSON(w, r, http.StatusOK, ResumeResponse{Resumed: n})
}

// RetryItem handles POST /api/batch/{id}/retry.
func (h *BatchHandler) RetryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}
	var req ItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	key := domain.ItemKey{BatchID: id, VideoID: req.VideoID, SegmentID: req.SegmentID}
	if err := h.service.RetryItem(r.Context(), key); err != nil {
		HandleAPIError(w, r, err, "Failed to retry analysis")
		return
	}

	shared.RespondWithSuccess(w, r)
}

// RecordAnswer handles POST /api/batch/{id}/answer.
func (h *BatchHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}
	var req AnswerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	key := domain.ItemKey{BatchID: id, VideoID: req.VideoID, SegmentID: req.SegmentID}
	update := domain.AnswerUpdate{
		UserAnswers:       req.UserAnswers,
		TranscriptCorrect: req.UserTranscriptCorrect,
	}
	status, err := h.service.RecordAnswer(r.Context(), key, update)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to save answers")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, AnswerResponse{Success: true, BatchStatus: status})
}
