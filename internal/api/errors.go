//
//
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/media-admin/livefeed/internal/command"
	"github.com/media-admin/livefeed/internal/drive"
	"github.com/media-admin/livefeed/internal/feed"
	"github.com/media-admin/livefeed/internal/folder"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// NewAPIError creates a new API error.
func NewAPIError(code string, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errorMapping ties domain sentinels to a code, status and message. The
// first match wins.
var errorMapping = []struct {
	target  error
	code    string
	status  int
	message string
}{
	{folder.ErrInvalid, "INVALID_FOLDER", http.StatusBadRequest, "Invalid folder id, url or name"},
	{folder.ErrExists, "FOLDER_EXISTS", http.StatusConflict, "Folder is already registered"},
	{folder.ErrNotFound, "NOT_FOUND", http.StatusNotFound, "Folder not found"},
	{drive.ErrNotFound, "NOT_FOUND", http.StatusNotFound, "Folder not found in the video source"},
	{command.ErrBusy, "BUSY", http.StatusServiceUnavailable, "Folder sync already running, retry later"},
	{drive.ErrBusy, "BUSY", http.StatusServiceUnavailable, "Video source is busy, retry with backoff"},
	{command.ErrUnavailable, "UNAVAILABLE", http.StatusServiceUnavailable, "Video source not configured"},
	{drive.ErrUnavailable, "UNAVAILABLE", http.StatusServiceUnavailable, "Video source is temporarily unavailable"},
	{feed.ErrHubStopped, "UNAVAILABLE", http.StatusServiceUnavailable, "Update stream is shutting down"},
	{context.DeadlineExceeded, "TIMEOUT", http.StatusGatewayTimeout, "Command timed out"},
	{drive.ErrInternal, "INTERNAL", http.StatusInternalServerError, "Video source error"},
}

// ToAPIError converts an error to an HTTP status code and JSON body.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, marshalErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return m.status, marshalErrorResponse(m.code, m.message, nil)
		}
	}

	return http.StatusInternalServerError, marshalErrorResponse("INTERNAL", "Internal server error", map[string]interface{}{
		"original": err.Error(),
	})
}

// writeAPIError writes err using ToAPIError.
func writeAPIError(w http.ResponseWriter, err error) {
	status, body := ToAPIError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// marshalErrorResponse creates a JSON error response with correlation ID.
func marshalErrorResponse(code, message string, details interface{}) []byte {
	jsonBytes, err := json.Marshal(ErrorResponse(code, message, details))
	if err != nil {
		fallback := map[string]interface{}{
			"result":        "error",
			"status":        "error",
			"code":          "INTERNAL",
			"message":       "Failed to marshal error response",
			"correlationId": generateCorrelationID(),
		}
		jsonBytes, _ := json.Marshal(fallback)
		return jsonBytes
	}
	return jsonBytes
}
