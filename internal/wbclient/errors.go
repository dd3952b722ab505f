// internal/wbclient/errors.go
package wbclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type ErrorKind string

const (
	ErrorKindAuth        ErrorKind = "auth"
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindServer      ErrorKind = "server"
	ErrorKindMalformed   ErrorKind = "malformed"
)

// APIError is a classified failure from the upstream marketplace API.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("wb api: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("wb api: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure is transient. Auth rejections and
// malformed responses never retry.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case ErrorKindRateLimited, ErrorKindTimeout, ErrorKindServer:
		return true
	default:
		return false
	}
}

// classifyStatus maps an upstream HTTP status to an APIError.
func classifyStatus(statusCode int, body string) *APIError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &APIError{Kind: ErrorKindAuth, StatusCode: statusCode, Message: "invalid token or unauthorized"}
	case statusCode == http.StatusTooManyRequests:
		return &APIError{Kind: ErrorKindRateLimited, StatusCode: statusCode, Message: "rate limit exceeded"}
	case statusCode >= 500:
		return &APIError{Kind: ErrorKindServer, StatusCode: statusCode, Message: body}
	default:
		return &APIError{Kind: ErrorKindMalformed, StatusCode: statusCode, Message: body}
	}
}

// classifyTransport maps a transport-level error to an APIError.
func classifyTransport(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: ErrorKindTimeout, Message: err.Error()}
	}
	return &APIError{Kind: ErrorKindServer, Message: err.Error()}
}

// IsRetryable reports whether err is a transient upstream failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// KindOf extracts the error classification, defaulting to server.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrorKindServer
}
