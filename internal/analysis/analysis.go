// Package analysis defines the port to the external audio-analysis model.
// A call is slow (tens of seconds to minutes), may fail, and is the resource
// the task gate protects.
package analysis

import (
	"context"
	"errors"

	"github.com/phrazzld/annotator-api/internal/domain"
)

// MIMETypeWAV is the MIME type of every segment sent for analysis.
const MIMETypeWAV = "audio/wav"

var (
	// ErrUpstream marks any failure of the analysis provider.
	ErrUpstream = errors.New("analysis provider failed")

	// ErrInvalidConfig means the analysis configuration could not be turned
	// into a provider request.
	ErrInvalidConfig = errors.New("invalid analysis configuration")

	// ErrInvalidResponse means the provider answered with something that is
	// not a JSON object.
	ErrInvalidResponse = errors.New("invalid response from analysis provider")

	// ErrContentBlocked means the provider refused the input on safety grounds.
	ErrContentBlocked = errors.New("content blocked by analysis provider")

	// ErrTransientFailure means retries were exhausted on a retryable error.
	ErrTransientFailure = errors.New("transient analysis failure")

	// ErrDisabled is returned by Disabled for every call.
	ErrDisabled = errors.New("analysis provider is disabled")
)

// Analyzer sends one audio clip to the model and returns its structured
// answer as a JSON object.
type Analyzer interface {
	Analyze(ctx context.Context, audio []byte, mimeType string, cfg *domain.AnalysisConfig) (map[string]any, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, audio []byte, mimeType string, cfg *domain.AnalysisConfig) (map[string]any, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(
	ctx context.Context,
	audio []byte,
	mimeType string,
	cfg *domain.AnalysisConfig,
) (map[string]any, error) {
	return f(ctx, audio, mimeType, cfg)
}

// Disabled is the analyzer used when no provider is configured. Every item
// dispatched to it ends in the error status.
var Disabled Analyzer = AnalyzerFunc(func(context.Context, []byte, string, *domain.AnalysisConfig) (map[string]any, error) {
	return nil, ErrDisabled
})
