package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies provider failures.
type ErrorCode string

const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // backend not reachable
	ErrCodeModelNotFound      ErrorCode = "MODEL_NOT_FOUND"     // model not pulled
	ErrCodeNetworkError       ErrorCode = "NETWORK_ERROR"
	ErrCodeInvalidResponse    ErrorCode = "INVALID_RESPONSE" // body did not decode or lacked a message
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeUnknown            ErrorCode = "UNKNOWN"
)

// ProviderError is a structured error for provider operations.
type ProviderError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Provider  string    `json:"provider"`
	Retryable bool      `json:"retryable"`
	Err       error     `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(code ErrorCode, message, provider string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// IsTimeout reports whether err is a deadline expiry, either a typed
// provider timeout or a context deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code == ErrCodeTimeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable reports whether err is a transient provider error.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
