// Package errs defines the fixed error-code vocabulary the core returns
// to callers, per the error-reporting contract: return values indicate
// success/failure and an optional last-error carries one of a small,
// fixed set of numeric codes.
package errs

import "fmt"

// Code is one of the fixed set of error codes the core ever returns.
type Code int

const (
	_ Code = iota
	InvalidArg
	Exists
	NotFound
	OutOfMemory
	IO
	Overflow
	WrongState
)

func (c Code) String() string {
	switch c {
	case InvalidArg:
		return "INVALID_ARG"
	case Exists:
		return "EXISTS"
	case NotFound:
		return "NOT_FOUND"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case IO:
		return "IO"
	case Overflow:
		return "OVERFLOW"
	case WrongState:
		return "WRONG_STATE"
	default:
		return "UNKNOWN"
	}
}

// Error wraps a Code with a human-readable message. It satisfies error
// and is comparable by code via Is.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, errs.New(errs.NotFound, "")) style checks work without
// comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs an *Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Newf constructs an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons against a bare code, e.g.
// errors.Is(err, errs.ErrNotFound).
var (
	ErrInvalidArg  = &Error{Code: InvalidArg}
	ErrExists      = &Error{Code: Exists}
	ErrNotFound    = &Error{Code: NotFound}
	ErrOutOfMemory = &Error{Code: OutOfMemory}
	ErrIO          = &Error{Code: IO}
	ErrOverflow    = &Error{Code: Overflow}
	ErrWrongState  = &Error{Code: WrongState}
)
