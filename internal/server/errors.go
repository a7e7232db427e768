package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
)

// HTTP-only error codes; the rest come from the structured error taxonomy.
const (
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, statusCode int,
	code, message string, retryable bool, details map[string]any) {

	requestID, _ := r.Context().Value(contextKeyRequestID).(string)
	respondJSON(w, statusCode, ErrorResponse{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Retryable: retryable,
	})
}

// statusFor maps an operation error onto an HTTP status and retry hint.
func statusFor(err error) (int, bool) {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeUnauthorized:
		return http.StatusForbidden, false
	case apperrors.ErrCodeInvalidRequest:
		return http.StatusBadRequest, false
	case apperrors.ErrCodeQueryOverflow, apperrors.ErrCodePartialUnavailable:
		return http.StatusServiceUnavailable, true
	case apperrors.ErrCodeFatal:
		return http.StatusInternalServerError, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, true
	}
	return http.StatusInternalServerError, true
}

// writeOperationError reports a failed telemetry operation.
func (s *Server) writeOperationError(w http.ResponseWriter, r *http.Request, err error) {
	status, retryable := statusFor(err)
	code := string(apperrors.CodeOf(err))
	if code == "" {
		code = ErrCodeInternalError
	}
	var details map[string]any
	var se *apperrors.StructuredError
	if errors.As(err, &se) && len(se.Context) > 0 {
		details = se.Context
	}
	s.writeError(w, r, status, code, err.Error(), retryable, details)
}
