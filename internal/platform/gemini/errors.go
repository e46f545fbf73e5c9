package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/annotator-api/internal/analysis"
	"google.golang.org/genai"
)

// isRetryable reports whether a failed call may succeed if repeated.
// Rate limiting and server errors are; other client errors and caller
// cancellation are not. Errors without a status code are network failures.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code, ok := apiStatusCode(err)
	if !ok {
		return true
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func apiStatusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// decodeAnswer parses the model's text as a JSON object. Markdown code
// fences are tolerated.
func decodeAnswer(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty answer", analysis.ErrInvalidResponse)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", analysis.ErrInvalidResponse, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: answer is not a JSON object", analysis.ErrInvalidResponse)
	}
	return result, nil
}
