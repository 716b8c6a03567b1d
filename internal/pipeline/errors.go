package pipeline

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable identifier for a terminal pipeline
// failure. Codes are part of the API contract and must not change.
type Code string

const (
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeNoDataFound     Code = "NO_DATA_FOUND"
	CodeInferenceFailed Code = "INFERENCE_FAILED"
)

// Error is a terminal pipeline failure carrying its stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode extracts the stable code from a pipeline error. The second
// return is false for errors that did not originate here.
func ErrorCode(err error) (Code, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

func failf(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}
