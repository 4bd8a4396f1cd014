package formatter

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Code classifies a formatting failure and drives retry decisions
type Code string

const (
	CodeAuthentication Code = "AUTHENTICATION_ERROR"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeNotFound       Code = "NOT_FOUND"
	CodeRateLimit      Code = "RATE_LIMIT_ERROR"
	CodeServer         Code = "SERVER_ERROR"
	CodeTimeout        Code = "TIMEOUT_ERROR"
	CodeEnqueueFailed  Code = "ENQUEUE_FAILED"
	CodeUnknown        Code = "UNKNOWN_ERROR"
)

// Retryable reports whether a failure with this code may succeed on a later
// attempt. Unclassified errors default to retryable.
func (c Code) Retryable() bool {
	switch c {
	case CodeRateLimit, CodeServer, CodeTimeout, CodeUnknown:
		return true
	default:
		return false
	}
}

// Error is a classified formatting failure
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps an error with a classification code
func NewError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Classify maps an arbitrary provider/transport error onto the taxonomy.
// Already-classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeTimeout, err)
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "PERMISSION_DENIED") || strings.Contains(msg, "UNAUTHENTICATED") ||
		strings.Contains(lower, "api key") || strings.Contains(lower, "authentication"):
		return NewError(CodeAuthentication, err)

	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit"):
		return NewError(CodeRateLimit, err)

	case strings.Contains(msg, "400") || strings.Contains(msg, "INVALID_ARGUMENT") ||
		strings.Contains(lower, "invalid request"):
		return NewError(CodeInvalidRequest, err)

	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") ||
		strings.Contains(msg, "INTERNAL") || strings.Contains(msg, "UNAVAILABLE") ||
		strings.Contains(lower, "overloaded"):
		return NewError(CodeServer, err)

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return NewError(CodeTimeout, err)

	default:
		return NewError(CodeUnknown, err)
	}
}

// maxErrorMessageLen caps persisted error messages
const maxErrorMessageLen = 300

// Sanitize bounds an error message for persistence. Provider errors never
// carry note content, so length capping is the only transformation needed.
func Sanitize(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorMessageLen {
		return msg[:maxErrorMessageLen] + "…"
	}
	return msg
}
