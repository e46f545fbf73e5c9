package api

import (
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"

	"github.com/phrazzld/annotator-api/internal/analysis"
	"github.com/phrazzld/annotator-api/internal/api/shared"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/objectstore"
	"github.com/phrazzld/annotator-api/internal/platform/logger"
)

// Audio responses may be cached by the browser for a day.
const audioCacheControl = "public, max-age=86400"

// SegmentHandler serves the segment catalogue, the audio proxy and
// single-shot analysis.
type SegmentHandler struct {
	lister   objectstore.Lister
	fetcher  objectstore.Fetcher
	analyzer analysis.Analyzer
	logger   *slog.Logger
}

// NewSegmentHandler creates a new SegmentHandler.
func NewSegmentHandler(
	lister objectstore.Lister,
	fetcher objectstore.Fetcher,
	analyzer analysis.Analyzer,
	logger *slog.Logger,
) *SegmentHandler {
	if lister == nil || fetcher == nil || analyzer == nil {
		// ALLOW-PANIC: Constructor enforcing required dependencies
		panic("segment handler dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SegmentHandler{
		lister:   lister,
		fetcher:  fetcher,
		analyzer: analyzer,
		logger:   logger.With(slog.String("component", "segment_handler")),
	}
}

// audioURL is the proxy URL of a segment.
func audioURL(ref domain.SegmentRef) string {
	q := url.Values{}
	q.Set("video_id", ref.VideoID)
	q.Set("file", objectstore.SegmentFile(ref.SegmentID))
	return "/api/audio?" + q.Encode()
}

// ListSegments handles GET /api/segments. The list is shuffled on every call.
func (h *SegmentHandler) ListSegments(w http.ResponseWriter, r *http.Request) {
	refs, err := h.lister.List(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list segments")
		return
	}

	rand.Shuffle(len(refs), func(i, j int) { refs[i], refs[j] = refs[j], refs[i] })

	resp := make([]SegmentResponse, 0, len(refs))
	for _, ref := range refs {
		resp = append(resp, SegmentResponse{
			VideoID:   ref.VideoID,
			SegmentID: ref.SegmentID,
			AudioURL:  audioURL(ref),
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetAudio handles GET /api/audio?video_id=&file=.
func (h *SegmentHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("video_id")
	file := r.URL.Query().Get("file")
	for name, value := range map[string]string{"video_id": videoID, "file": file} {
		if err := objectstore.ValidatePathPart(value); err != nil {
			HandleAPIError(w, r, domain.NewValidationError(name, "invalid path", err), "")
			return
		}
	}

	data, err := h.fetcher.Fetch(r.Context(), videoID, file)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load audio")
		return
	}

	w.Header().Set("Content-Type", analysis.MIMETypeWAV)
	w.Header().Set("Cache-Control", audioCacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).Debug("failed to write audio",
			slog.String("error", err.Error()))
	}
}

// Analyze handles POST /api/analyze. It runs one analysis synchronously
// outside of any batch.
func (h *SegmentHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Config != nil {
		if err := req.Config.Validate(); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
	}

	audio, err := h.fetcher.Fetch(r.Context(), req.VideoID, objectstore.SegmentFile(req.SegmentID))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load audio")
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), audio, analysis.MIMETypeWAV, req.Config)
	if err != nil {
		if MapErrorToStatusCode(err) == http.StatusBadRequest {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Analysis failed", err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("single segment analyzed",
		slog.String("video_id", req.VideoID),
		slog.String("segment_id", req.SegmentID))
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}
