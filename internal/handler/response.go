package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"onisai/internal/repository"
	"onisai/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps pipeline errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrZoneNotFlagged):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, errBadRequest),
		errors.Is(err, service.ErrInvalidZoneKind):
		return http.StatusBadRequest

	// Text that cannot be used as an offer
	case errors.Is(err, service.ErrNotAnOffer),
		errors.Is(err, service.ErrMalformedOffer):
		return http.StatusUnprocessableEntity

	// Conflict errors
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrTripAlreadyOpen),
		errors.Is(err, service.ErrDuplicateOffer):
		return http.StatusConflict

	// Another invocation holds the pipeline
	case errors.Is(err, service.ErrLockHeld):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
