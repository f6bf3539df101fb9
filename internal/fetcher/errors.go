package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType represents the category of error that occurred during a fetch operation
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout indicates the request timed out
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429 or a throttle payload)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 429)
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeSource indicates the API answered with an error status in its payload
	ErrorTypeSource ErrorType = "source"
	// ErrorTypeParse indicates the response was received but could not be decoded or validated
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypePanic indicates the fetcher panicked
	ErrorTypePanic ErrorType = "panic"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

// Category is the coarse failure class of a FetchError.
type Category string

const (
	CategoryNetwork Category = "network"
	CategorySource  Category = "source"
	CategoryParse   Category = "parse"
)

// FetchError represents a structured error from a fetch operation
type FetchError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Category collapses the detailed type into network, source or parse.
func (e *FetchError) Category() Category {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return CategoryNetwork
	case ErrorTypeParse:
		return CategoryParse
	default:
		return CategorySource
	}
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int, message string) *FetchError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return &FetchError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewServerError creates a server error
func NewServerError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeServer,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewClientError creates a client error
func NewClientError(statusCode int, message string) *FetchError {
	return &FetchError{
		Type:       ErrorTypeClient,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewSourceError creates an error reported by the API inside an otherwise valid response
func NewSourceError(message string) *FetchError {
	return &FetchError{
		Type:      ErrorTypeSource,
		Retryable: false,
		Message:   message,
	}
}

// NewParseError creates a parse error
func NewParseError(message string, cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeParse,
		Retryable: false,
		Message:   message,
		Cause:     cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// NewPanicError creates an error for a recovered panic
func NewPanicError(v any) *FetchError {
	return &FetchError{
		Type:    ErrorTypePanic,
		Message: fmt.Sprintf("fetcher panicked: %v", v),
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate FetchError
func ClassifyHTTPError(statusCode int) *FetchError {
	switch {
	case statusCode == 429 || statusCode == 418:
		// Binance answers 418 once an IP has been banned for ignoring 429s.
		return NewRateLimitError(statusCode, "")
	case statusCode >= 500:
		return NewServerError(statusCode)
	case statusCode >= 400:
		return NewClientError(statusCode, fmt.Sprintf("client error: HTTP %d", statusCode))
	default:
		return &FetchError{
			Type:       ErrorTypeUnknown,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

// Classify converts any error into a *FetchError. A *FetchError anywhere in
// the chain is returned as is and deadlines become timeouts. JSON decode
// errors are parse failures; anything else is treated as a network failure.
// Classify(nil) returns nil.
func Classify(err error) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}

	if isDecodeError(err) {
		return NewParseError("malformed response body", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err)
	}

	return NewNetworkError(err)
}
