package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/annotator-api/internal/analysis"
	"github.com/phrazzld/annotator-api/internal/api/shared"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/objectstore"
	"github.com/phrazzld/annotator-api/internal/service"
	"github.com/phrazzld/annotator-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError

	// Bad request errors
	case domain.IsValidationError(err),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, objectstore.ErrInvalidPath),
		errors.Is(err, analysis.ErrInvalidConfig):
		return http.StatusBadRequest

	// Not found errors
	case errors.Is(err, service.ErrBatchNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrBatchCompleted),
		errors.Is(err, service.ErrAnalysisInProgress):
		return http.StatusConflict

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. Validation messages are built from caller input
// and are returned as they are.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}

	switch {
	case errors.Is(err, service.ErrConflict):
		return "Another batch is already in progress"
	case errors.Is(err, service.ErrBatchCompleted):
		return "Batch is completed"
	case errors.Is(err, service.ErrAnalysisInProgress):
		return "Analysis is still in progress"
	case errors.Is(err, service.ErrBatchNotFound), errors.Is(err, store.ErrBatchNotFound):
		return "Batch not found"
	case errors.Is(err, service.ErrItemNotFound), errors.Is(err, store.ErrItemNotFound):
		return "Annotation not found"
	case errors.Is(err, objectstore.ErrNotFound):
		return "Audio not found"
	case errors.Is(err, objectstore.ErrInvalidPath):
		return "Invalid path"
	case errors.Is(err, analysis.ErrInvalidConfig):
		return "Invalid analysis configuration"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, domain.ErrValidation):
		return "Validation error"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err. fallback replaces the
// generic message of unmapped (500) errors when non-empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		opts = append(opts, shared.WithExistingID(conflict.ExistingID.String()))
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
