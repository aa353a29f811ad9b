// Package errors holds the JSON error bodies returned before an event stream
// opens. Failures after the stream opens are sent as SSE error events instead.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidRequest Code = "invalid_request"
	CodeUnauthorized   Code = "unauthorized"
	CodeChatNotFound   Code = "chat_not_found"
	CodeStreamActive   Code = "stream_active"
	CodeStreamNotFound Code = "stream_not_found"
	CodeStreamStopped  Code = "stream_already_stopped"
	CodeInternal       Code = "internal_error"
)

// APIError represents a simple standardized error response.
type APIError struct {
	Error   string         `json:"error"`
	Code    Code           `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(code Code, message string, details map[string]any) *APIError {
	return &APIError{
		Error:   message,
		Code:    code,
		Details: details,
	}
}

func abort(c *gin.Context, status int, code Code, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, NewAPIError(code, message, details))
}

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]any) {
	abort(c, http.StatusBadRequest, CodeInvalidRequest, message, details)
}

// AbortWithUnauthorized sends a 401 Unauthorized response and aborts the request.
func AbortWithUnauthorized(c *gin.Context, message string) {
	abort(c, http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

// AbortWithNotFound sends a 404 Not Found response and aborts the request.
func AbortWithNotFound(c *gin.Context, code Code, message string, details map[string]any) {
	abort(c, http.StatusNotFound, code, message, details)
}

// AbortWithConflict sends a 409 Conflict response and aborts the request.
func AbortWithConflict(c *gin.Context, code Code, message string, details map[string]any) {
	abort(c, http.StatusConflict, code, message, details)
}

// AbortWithInternal sends a 500 Internal Server Error response and aborts the request.
// The message must be safe to show to clients.
func AbortWithInternal(c *gin.Context, message string) {
	abort(c, http.StatusInternalServerError, CodeInternal, message, nil)
}
