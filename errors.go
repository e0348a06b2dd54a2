package upd

import (
	"errors"
	"fmt"
)

// Error represents a structured runtime error with context
type Error struct {
	Op     string    // Operation that failed (e.g., "NEW_FILE", "REGISTER_DRIVER")
	FileID FileID    // File id (0 if not applicable)
	Code   ErrorCode // High-level error category
	Msg    string    // Human-readable message
	Inner  error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("upd: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("upd: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support against both sentinel and structured targets
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if ue, ok := target.(updError); ok {
		return e.Code == ErrorCode(ue)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "file not found"
	ErrCodeExists             ErrorCode = "file already exists"
	ErrCodeInvalidParameters  ErrorCode = "invalid parameters"
	ErrCodeInsufficientMemory ErrorCode = "insufficient memory"
	ErrCodeTimeout            ErrorCode = "timeout"
	ErrCodeDriverFailure      ErrorCode = "driver failure"
	ErrCodeShutdown           ErrorCode = "isolate is shut down"
	ErrCodeAborted            ErrorCode = "aborted"
)

// updError is the sentinel error type backing the Err… values
type updError string

func (e updError) Error() string {
	return string(e)
}

// Sentinel errors for errors.Is comparisons
const (
	ErrNotFound           updError = "file not found"
	ErrExists             updError = "file already exists"
	ErrInvalidParameters  updError = "invalid parameters"
	ErrInsufficientMemory updError = "insufficient memory"
	ErrTimeout            updError = "timeout"
	ErrDriverFailure      updError = "driver failure"
	ErrShutdown           updError = "isolate is shut down"
	ErrAborted            updError = "aborted"
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewFileError creates a new file-specific error
func NewFileError(op string, id FileID, code ErrorCode, msg string) *Error {
	return &Error{
		Op:     op,
		FileID: id,
		Code:   code,
		Msg:    msg,
	}
}

// WrapError wraps an existing error with runtime context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ue, ok := inner.(*Error); ok {
		return &Error{
			Op:     op,
			FileID: ue.FileID,
			Code:   ue.Code,
			Msg:    ue.Msg,
			Inner:  ue.Inner,
		}
	}
	code := ErrCodeDriverFailure
	if ue, ok := inner.(updError); ok {
		code = ErrorCode(ue)
	}
	return &Error{
		Op:    op,
		Code:  code,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code == code
	}
	return false
}

// ResultError maps a request result code to a sentinel error. OK maps
// to nil.
func ResultError(r Result) error {
	switch r {
	case OK:
		return nil
	case NoMem:
		return ErrInsufficientMemory
	case Aborted:
		return ErrAborted
	default:
		return ErrInvalidParameters
	}
}
