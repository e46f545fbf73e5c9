package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/api"
	"github.com/phrazzld/annotator-api/internal/domain"
)

// DefaultTimeout bounds a single API request.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNotFound matches API errors with status 404.
	ErrNotFound = errors.New("not found")

	// ErrConflict matches API errors with status 409.
	ErrConflict = errors.New("conflict")

	// ErrBadRequest matches API errors with status 400.
	ErrBadRequest = errors.New("bad request")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
	// ExistingID is set on a create conflict.
	ExistingID uuid.UUID
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Is matches the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// Client is a typed HTTP client for the annotation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "api_client"))
	return c, nil
}

// CreateBatch starts a batch. A conflict is returned as an *APIError
// matching ErrConflict with ExistingID set.
func (c *Client) CreateBatch(ctx context.Context, segments []domain.SegmentRef, cfg *domain.AnalysisConfig) (uuid.UUID, error) {
	req := api.CreateBatchRequest{GeminiConfig: cfg}
	for _, s := range segments {
		req.Segments = append(req.Segments, api.SegmentRequest{VideoID: s.VideoID, SegmentID: s.SegmentID})
	}

	var resp api.CreateBatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/batch", req, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// ListBatches returns all batches, newest first.
func (c *Client) ListBatches(ctx context.Context) ([]api.BatchResponse, error) {
	var resp []api.BatchResponse
	if err := c.do(ctx, http.MethodGet, "/api/batch", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetBatch returns the batch with its annotations.
func (c *Client) GetBatch(ctx context.Context, id uuid.UUID) (*api.BatchDetailResponse, error) {
	var resp api.BatchDetailResponse
	if err := c.do(ctx, http.MethodGet, "/api/batch/"+id.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResumeBatch asks the server to redispatch stalled items and returns how
// many were started.
func (c *Client) ResumeBatch(ctx context.Context, id uuid.UUID) (int, error) {
	var resp api.ResumeResponse
	if err := c.do(ctx, http.MethodPost, "/api/batch/"+id.String()+"/resume", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Resumed, nil
}

// RetryItem reruns the analysis of one item.
func (c *Client) RetryItem(ctx context.Context, id uuid.UUID, ref domain.SegmentRef) error {
	req := api.ItemRequest{VideoID: ref.VideoID, SegmentID: ref.SegmentID}
	return c.do(ctx, http.MethodPost, "/api/batch/"+id.String()+"/retry", req, nil)
}

// RecordAnswer saves human answers for one item and returns the batch
// status after the write.
func (c *Client) RecordAnswer(
	ctx context.Context,
	id uuid.UUID,
	ref domain.SegmentRef,
	answers map[string]any,
	transcriptCorrect *bool,
) (domain.BatchStatus, error) {
	req := api.AnswerRequest{
		VideoID:               ref.VideoID,
		SegmentID:             ref.SegmentID,
		UserAnswers:           answers,
		UserTranscriptCorrect: transcriptCorrect,
	}
	var resp api.AnswerResponse
	if err := c.do(ctx, http.MethodPost, "/api/batch/"+id.String()+"/answer", req, &resp); err != nil {
		return "", err
	}
	return resp.BatchStatus, nil
}

// CompleteBatch marks the batch completed. Without force the server refuses
// while analysis is still running.
func (c *Client) CompleteBatch(ctx context.Context, id uuid.UUID, force bool) error {
	path := "/api/batch/" + id.String()
	if force {
		path += "?force=true"
	}
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body struct {
		Error      string `json:"error"`
		ExistingID string `json:"existing_id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		}
		if id, err := uuid.Parse(body.ExistingID); err == nil {
			apiErr.ExistingID = id
		}
	}
	return apiErr
}
