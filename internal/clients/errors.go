package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for remote status classification.
// Use errors.Is(err, clients.ErrNotFound) to check.
var (
	ErrBadRequest      = errors.New("catalog api: bad request")
	ErrUnauthorized    = errors.New("catalog api: unauthorized")
	ErrForbidden       = errors.New("catalog api: forbidden")
	ErrNotFound        = errors.New("catalog api: not found")
	ErrVersionConflict = errors.New("catalog api: version conflict")
	ErrThrottled       = errors.New("catalog api: throttled")
	ErrServerError     = errors.New("catalog api: server error")
)

// TransportError is a network-level failure: the request never produced an
// HTTP status.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is one entry of the remote error list
type RemoteError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
	Field    string `json:"field,omitempty"`
}

// APIError is a non-2xx response from the remote API
type APIError struct {
	StatusCode int
	Body       string
	Errors     []RemoteError
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		first := e.Errors[0]
		if first.Detail != "" {
			return fmt.Sprintf("catalog api error (status %d): %s: %s", e.StatusCode, first.Code, first.Detail)
		}
		return fmt.Sprintf("catalog api error (status %d): %s", e.StatusCode, first.Code)
	}
	return fmt.Sprintf("catalog api error (status %d): %s", e.StatusCode, truncate(e.Body, 200))
}

// Unwrap exposes the status sentinel for errors.Is
func (e *APIError) Unwrap() error {
	if e.IsVersionConflict() {
		return ErrVersionConflict
	}
	return classifyStatus(e.StatusCode)
}

// IsVersionConflict reports whether the remote rejected a stale version
func (e *APIError) IsVersionConflict() bool {
	if e.StatusCode == http.StatusConflict {
		return true
	}
	for _, re := range e.Errors {
		if re.Code == "VERSION_MISMATCH" || re.Code == "CONFLICT" {
			return true
		}
	}
	return false
}

// NewAPIError builds an APIError and parses the remote error list when present
func NewAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Body: string(body)}
	var envelope struct {
		Errors []RemoteError `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Errors = envelope.Errors
	}
	return apiErr
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrVersionConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
