package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// It is usually wrapped by a ValidationError carrying the field detail.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	ErrEmptySegments        = errors.New("segments must be a non-empty list")
	ErrEmptySegmentRef      = errors.New("video_id and segment_id are required")
	ErrDuplicateSegment     = errors.New("segment listed more than once")
	ErrInvalidBatchStatus   = errors.New("invalid batch status")
	ErrInvalidItemStatus    = errors.New("invalid analysis status")
	ErrInconsistentItem     = errors.New("item status does not match its result and error fields")
	ErrEmptyAnswerUpdate    = errors.New("at least one of user_answers or user_transcript_correct is required")
	ErrInvalidSchema        = errors.New("schemaJson must be a JSON object")
	ErrInvalidThinkingLevel = errors.New("invalid thinkingLevel")
	ErrInvalidResolution    = errors.New("invalid mediaResolution")
	ErrInvalidSafety        = errors.New("safety settings need both category and threshold")
)

// ValidationError reports invalid caller input. The message is safe to show
// to API clients verbatim.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match both ErrValidation and the specific cause.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
