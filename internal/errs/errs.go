// README: Stable error codes shared by the core modules and the HTTP layer.
package errs

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidCoordinate Code = "INVALID_COORDINATE"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeAlreadyAssigned   Code = "ALREADY_ASSIGNED"
	CodeNotEligible       Code = "NOT_ELIGIBLE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeStoreTimeout      Code = "STORE_TIMEOUT"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeInternal          Code = "INTERNAL"
)

// Error is a business failure carrying a stable code.
// Two errors with the same code match under errors.Is.
type Error struct {
	Code Code
	Msg  string
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
