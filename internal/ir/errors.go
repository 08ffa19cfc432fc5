package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes core errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown cid or claim id on lookup.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeValidation indicates input rejected before any write.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeIO indicates a ledger, blob or database read/write failure.
	ErrCodeIO ErrorCode = "IO"

	// ErrCodeCorrupt indicates a persisted record that cannot be decoded.
	ErrCodeCorrupt ErrorCode = "CORRUPT"
)

// Error is the error type returned across the core.
//
// Ref names the entity involved (a cid, claim id, stream or file) when
// there is one. Err carries the underlying cause for errors.Is/As.
type Error struct {
	Code    ErrorCode
	Message string
	Ref     string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Ref != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Ref)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds a NOT_FOUND error for the given entity.
func NotFound(kind, ref string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: kind + " not found", Ref: ref}
}

// Invalid builds a VALIDATION error.
func Invalid(format string, args ...any) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// IOFailure wraps an I/O cause.
func IOFailure(op, ref string, err error) *Error {
	return &Error{Code: ErrCodeIO, Message: op, Ref: ref, Err: err}
}

// Corrupt wraps a decode failure of a persisted record.
func Corrupt(ref string, err error) *Error {
	return &Error{Code: ErrCodeCorrupt, Message: "undecodable record", Ref: ref, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsValidation reports whether err is a VALIDATION error.
func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }

// IsIO reports whether err is an IO error.
func IsIO(err error) bool { return CodeOf(err) == ErrCodeIO }
