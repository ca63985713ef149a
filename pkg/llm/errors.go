package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
)

// ErrorType classifies why an answer request failed.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeServer    ErrorType = "server"
	ErrorTypeResponse  ErrorType = "response"
	ErrorTypeCircuit   ErrorType = "circuit_open"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is the structured failure of an answer-service call. Every Error
// matches apperrors.ErrExternalService under errors.Is.
type Error struct {
	Type       ErrorType // Classification of the failure
	Message    string    // Human-readable message
	Retryable  bool      // Whether the call can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Provider   string    // Provider name (workflow, openai, anthropic)
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.Provider != "" {
		parts = append(parts, "provider="+e.Provider)
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes every answer-service failure match apperrors.ErrExternalService.
func (e *Error) Is(target error) bool {
	return target == apperrors.ErrExternalService
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a structured answer-service error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// StatusError classifies a non-2xx HTTP response. Only 429 and 5xx are retried.
func StatusError(provider string, status int, body string) *Error {
	var e *Error
	switch {
	case status == 401 || status == 403:
		e = NewError(ErrorTypeAuth, "authentication failed", false, nil)
	case status == 404:
		e = NewError(ErrorTypeEndpoint, "endpoint not found", false, nil)
	case status == 429:
		e = NewError(ErrorTypeRateLimit, "rate limited", true, nil)
	case status >= 500:
		e = NewError(ErrorTypeServer, "server error", true, nil)
	default:
		e = NewError(ErrorTypeUnknown, "unexpected status", false, nil)
	}
	if body != "" {
		e.Message += ": " + body
	}
	e.StatusCode = status
	e.Provider = provider
	return e
}

// ClassifyError turns a transport or SDK error into an *Error. An existing
// *Error is returned unchanged.
func ClassifyError(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	var e *Error
	var netErr net.Error
	lower := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.Canceled):
		e = NewError(ErrorTypeTimeout, "request canceled", false, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(lower, "timeout"):
		e = NewError(ErrorTypeTimeout, "request timeout", true, err)
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "no such host"):
		e = NewError(ErrorTypeEndpoint, "connection failed", true, err)
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key"):
		e = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		e = NewError(ErrorTypeRateLimit, "rate limited", true, err)
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504") ||
		strings.Contains(lower, "overloaded"):
		e = NewError(ErrorTypeServer, "server error", true, err)
	default:
		e = NewError(ErrorTypeUnknown, "answer request failed", false, err)
	}
	e.Provider = provider
	return e
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err carries a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
