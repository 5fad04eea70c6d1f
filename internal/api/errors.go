// Package api provides the HTTP handlers for events, submissions and queue actions.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
	"github.com/stwalsh4118/lecturesfrom/internal/queue"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// statusForKind maps a queue error kind to an HTTP status
func statusForKind(kind queue.Kind) int {
	switch kind {
	case queue.KindValidation:
		return http.StatusBadRequest
	case queue.KindNotFound:
		return http.StatusNotFound
	case queue.KindInvalidTransition, queue.KindConflict:
		return http.StatusConflict
	case queue.KindDependencyFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a typed queue failure, or a generic 500 for anything else
func respondError(c *gin.Context, err error) {
	var qe *queue.Error
	if !errors.As(err, &qe) {
		logger.Log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Unclassified handler error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		})
		return
	}

	if qe.Retryable() {
		c.Header("Retry-After", "1")
	}
	c.JSON(statusForKind(qe.Kind), ErrorResponse{
		Error:   qe.Kind.String(),
		Message: qe.Message,
	})
}

// badRequest writes a 400 for malformed input that never reached the service
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   queue.KindValidation.String(),
		Message: message,
	})
}

// parseIDParam reads a UUID path parameter, writing a 400 when it is malformed
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}
