// Package httpapi provides the HTTP core shared by the provider clients:
// bearer authentication, retry with exponential backoff, Retry-After
// handling, and classification of failures into sentinel errors.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, httpapi.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("httpapi: bad request")
	ErrUnauthorized = errors.New("httpapi: unauthorized")
	ErrForbidden    = errors.New("httpapi: forbidden")
	ErrNotFound     = errors.New("httpapi: not found")
	ErrConflict     = errors.New("httpapi: conflict")
	ErrTimeout      = errors.New("httpapi: request timeout")
	ErrThrottled    = errors.New("httpapi: throttled")
	ErrServerError  = errors.New("httpapi: server error")
	ErrUnexpected   = errors.New("httpapi: unexpected status")
)

// APIError wraps a sentinel error with HTTP status code, request ID,
// and the API error message body for debugging.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
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
		return ErrConflict
	case http.StatusRequestTimeout:
		return ErrTimeout
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		if code >= http.StatusOK && code < http.StatusMultipleChoices {
			return nil
		}

		return ErrUnexpected
	}
}

// DefaultRetryable is the default retry policy for transient status codes.
// Provider policies usually extend it.
func DefaultRetryable(code int, _ []byte) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// NewAPIError builds an APIError for a non-2xx response whose body has
// already been read.
func NewAPIError(resp *http.Response, body []byte, requestIDHeader string) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(requestIDHeader),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// Class is the coarse failure category callers branch on.
type Class int

const (
	// ClassPermanent failures will not succeed on retry (bad request, conflict).
	ClassPermanent Class = iota
	// ClassNotFound means the addressed resource does not exist.
	ClassNotFound
	// ClassAuth means credentials are missing, expired, or rejected.
	ClassAuth
	// ClassTransient covers throttling, server errors, and network failures.
	ClassTransient
	// ClassCanceled means the caller's context ended the request.
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassAuth:
		return "auth"
	case ClassTransient:
		return "transient"
	case ClassCanceled:
		return "canceled"
	default:
		return "permanent"
	}
}

// Classify maps an error returned by Client into a Class. Errors that are
// not APIErrors (DNS, connection reset, TLS) are transient.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassPermanent
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrTokenUnavailable):
		return ClassAuth
	case errors.Is(err, ErrThrottled), errors.Is(err, ErrServerError), errors.Is(err, ErrTimeout):
		return ClassTransient
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ClassPermanent
	}

	return ClassTransient
}
