package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrTimeout            = errors.New("timeout")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnverified         = errors.New("transaction unverified")
	ErrBackendRejected    = errors.New("backend rejected")
	ErrDecode             = errors.New("malformed response")
	ErrNoUser             = errors.New("no authenticated user")
	ErrProductNotFound    = errors.New("product not found")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeStorage         ErrorType = "storage"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeRateLimited     ErrorType = "rate_limited"
	ErrorTypeUnverified      ErrorType = "unverified"
	ErrorTypeBackendRejected ErrorType = "backend_rejected"
	ErrorTypeDecode          ErrorType = "decode"
)

// EngineError is a structured error for entitlement engine operations
type EngineError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "backend_status", "trial_start")
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *EngineError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *EngineError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrStorageUnavailable:
		return e.Type == ErrorTypeStorage
	case ErrNetworkUnreachable:
		return e.Type == ErrorTypeNetwork
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrRateLimited:
		return e.Type == ErrorTypeRateLimited
	case ErrUnverified:
		return e.Type == ErrorTypeUnverified
	case ErrBackendRejected:
		return e.Type == ErrorTypeBackendRejected || e.Type == ErrorTypeDecode
	case ErrDecode:
		return e.Type == ErrorTypeDecode
	}

	return errors.Is(e.Err, target)
}

// New creates a new EngineError
func New(errorType ErrorType, op string, err error) *EngineError {
	return &EngineError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithStatusCode adds HTTP status code to the error
func (e *EngineError) WithStatusCode(code int) *EngineError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimited, ErrorTypeStorage:
		return true
	default:
		return false
	}
}

// Helper functions

// WrapStorageError wraps a persistent-store error with context
func WrapStorageError(op string, err error) error {
	return New(ErrorTypeStorage, op, err)
}

// WrapNetworkError wraps a transport-level error with context
func WrapNetworkError(op string, err error) error {
	return New(ErrorTypeNetwork, op, err)
}

// WrapBackendError wraps a backend API error with context
func WrapBackendError(op string, err error, statusCode int) error {
	return New(ErrorTypeBackendRejected, op, err).WithStatusCode(statusCode)
}

// WrapDecodeError wraps a malformed-response error with context
func WrapDecodeError(op string, err error) error {
	return New(ErrorTypeDecode, op, err)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr.Retryable
	}

	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetworkUnreachable)
}

// IsFailOpen reports whether an error should leave the cached entitlement
// authoritative rather than deny access.
func IsFailOpen(err error) bool {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		switch engErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimited, ErrorTypeStorage:
			return true
		}
	}
	return errors.Is(err, ErrNetworkUnreachable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

// IsRateLimited checks if an error is a 429 from the backend
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
