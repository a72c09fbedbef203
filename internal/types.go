// internal/types.go - Common types for internal packages
package internal

import (
	"context"
	"errors"
	"strings"
)

// Error represents application-specific errors
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new application error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode constants for common error types
const (
	ErrorCodeNetwork         = "NETWORK_ERROR"
	ErrorCodeTimeout         = "TIMEOUT_ERROR"
	ErrorCodeServer          = "SERVER_ERROR"
	ErrorCodeClient          = "CLIENT_ERROR"
	ErrorCodeProcessing      = "PROCESSING_ERROR"
	ErrorCodeValidation      = "VALIDATION_ERROR"
	ErrorCodeConfig          = "CONFIG_ERROR"
	ErrorCodeNotFound        = "NOT_FOUND"
	ErrorCodeFileSystem      = "FILESYSTEM_ERROR"
	ErrorCodeCameraAnimation = "CAMERA_ANIMATION_ERROR"
	ErrorCodeTileLoad        = "TILE_LOAD_ERROR"
	ErrorCodeCanceled        = "CANCELED"
)

// retriablePatterns are matched against the text of errors that carry no code
var retriablePatterns = []string{
	"network",
	"timeout",
	"fetch",
	"5xx",
	"500",
	"502",
	"503",
	"504",
}

// CodeOf returns the code of the outermost application error in the chain, or ""
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetriable reports whether a data-load failure is transient.
// Typed codes win; untyped errors fall back to substring matching.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var appErr *Error
	for e := err; errors.As(e, &appErr); e = appErr.Cause {
		switch appErr.Code {
		case ErrorCodeNetwork, ErrorCodeTimeout, ErrorCodeServer:
			return true
		case ErrorCodeClient, ErrorCodeValidation, ErrorCodeProcessing, ErrorCodeNotFound, ErrorCodeCanceled:
			return false
		}
		// wrapper kinds such as TILE_LOAD_ERROR defer to their cause
	}

	text := strings.ToLower(err.Error())
	for _, pattern := range retriablePatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}
