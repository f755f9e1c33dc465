package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses, CLI output and internal error handling.
const (
	// Configuration errors. No browser session is opened.
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
	ErrCodeEngineUnavailable = "ENGINE_UNAVAILABLE"

	// Fatal fetch errors. The session is closed before they are returned.
	ErrCodeSessionOpen = "SESSION_OPEN_FAILED"
	ErrCodeNavigation  = "NAVIGATION_FAILED"
	ErrCodeTimeout     = "FETCH_TIMEOUT"
	ErrCodeExtraction  = "EXTRACTION_FAILED"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// FetchError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type FetchError struct {
	Code    string
	Message string
	Stage   string // pipeline stage the error surfaced in, if any
	Err     error  // wrapped original error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(code, message string, err error) *FetchError {
	return &FetchError{Code: code, Message: message, Err: err}
}

// ConfigError creates an INVALID_CONFIG error.
func ConfigError(message string, err error) *FetchError {
	return NewFetchError(ErrCodeInvalidConfig, message, err)
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *FetchError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message, Stage: e.Stage}
}

// IsConfig reports whether the error was raised before any session was opened.
func (e *FetchError) IsConfig() bool {
	return e.Code == ErrCodeInvalidConfig || e.Code == ErrCodeEngineUnavailable
}

// AsFetchError returns err as a *FetchError, wrapping foreign errors
// as INTERNAL_ERROR.
func AsFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return NewFetchError(ErrCodeInternal, err.Error(), err)
}
