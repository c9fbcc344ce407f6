package api

import (
	"crypto/rand"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observation"
	"github.com/tphakala/fieldlog/internal/photostore"
)

// Error kinds reported in ErrorResponse.Kind.
const (
	KindValidation         = "validation"
	KindUnauthorized       = "unauthorized"
	KindNotFound           = "not_found"
	KindNoActiveDraft      = "no_active_draft"
	KindInvalidTransition  = "invalid_transition"
	KindCaptureUnavailable = "capture_unavailable"
	KindCatalogFetchFailed = "catalog_fetch_failed"
	KindWriteFailed        = "write_failed"
	KindPartialCommit      = "partial_commit"
	KindTimedOut           = "timed_out"
	KindInternal           = "internal"
)

// ErrorResponse represents a standard error response for the API.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlation_id"` // unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		Kind:          kindForStatus(err, code),
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates an 8 character identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError writes an ErrorResponse and logs it with its correlation id.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	log := c.log.WithContext(ctx.Request().Context())
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("kind", resp.Kind),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("user_id", currentUser(ctx)),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		log.Error("api error", fields...)
	} else {
		log.Debug("api error", fields...)
	}

	return ctx.JSON(code, resp)
}

// HandlePipelineError maps a pipeline error onto its HTTP status.
func (c *Controller) HandlePipelineError(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, statusFor(err))
}

// statusFor maps the error taxonomy onto HTTP status codes. Order matters:
// a partial commit may wrap a timeout, a write failure may wrap one too.
func statusFor(err error) int {
	switch {
	case errors.Is(err, observation.ErrPartialCommit):
		return http.StatusInternalServerError
	case errors.Is(err, observation.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, observation.ErrNoActiveDraft),
		errors.Is(err, observation.ErrInvalidTransition):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.Is(err, observation.ErrInvalidCategory),
		errors.Is(err, observation.ErrSpeciesNotFound):
		return http.StatusBadRequest
	case errors.Is(err, photostore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, observation.ErrCatalogFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, observation.ErrCaptureUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(err error, code int) string {
	switch {
	case errors.Is(err, observation.ErrPartialCommit):
		return KindPartialCommit
	case errors.Is(err, observation.ErrTimedOut):
		return KindTimedOut
	case errors.Is(err, observation.ErrNoActiveDraft):
		return KindNoActiveDraft
	case errors.Is(err, observation.ErrInvalidTransition):
		return KindInvalidTransition
	case code == http.StatusBadRequest:
		return KindValidation
	case code == http.StatusUnauthorized:
		return KindUnauthorized
	case code == http.StatusNotFound:
		return KindNotFound
	case errors.Is(err, observation.ErrCatalogFetchFailed):
		return KindCatalogFetchFailed
	case errors.Is(err, observation.ErrCaptureUnavailable):
		return KindCaptureUnavailable
	case errors.Is(err, observation.ErrWriteFailed):
		return KindWriteFailed
	default:
		return KindInternal
	}
}
