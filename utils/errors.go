// Package utils holds HTTP response helpers shared by the route handlers.
package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"web-research-assistant/models"
)

// ErrorResponse is the wire shape of every error the API returns.
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response.
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error.
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error.
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error.
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithDomainError maps a pipeline error to the matching HTTP status
// and error code.
func RespondWithDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		RespondWithError(c, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, models.ErrTimeout):
		RespondWithError(c, http.StatusGatewayTimeout, "timeout", err.Error(), nil)
	case errors.Is(err, models.ErrEmbeddingService):
		RespondWithError(c, http.StatusBadGateway, "embedding_service_error", err.Error(), nil)
	case errors.Is(err, models.ErrGenerationService):
		RespondWithError(c, http.StatusBadGateway, "generation_service_error", err.Error(), nil)
	case errors.Is(err, models.ErrFetch):
		RespondWithError(c, http.StatusBadGateway, "fetch_error", err.Error(), nil)
	case errors.Is(err, models.ErrDimensionMismatch), errors.Is(err, models.ErrModelMismatch):
		RespondWithError(c, http.StatusConflict, "index_mismatch", err.Error(), nil)
	default:
		RespondWithInternalError(c, "unexpected error", err.Error())
	}
}
