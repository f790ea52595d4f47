package intercom

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is the error value passed in intercom messages. It can hold any
// underlying failure so tasks don't need to share concrete error types.
type Error struct {
	cause error
}

// NewError wraps err. An *Error is returned unchanged.
func NewError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{cause: err}
}

// Errorf creates an error from a message.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{cause: errors.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return "unknown intercom error"
	}
	return e.cause.Error()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the wrapped error, for errors.Cause.
func (e *Error) Cause() error {
	return e.cause
}

// Format prints the wrapped error with %+v, including its stack if it has one.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%+v", e.cause)
		return
	}
	fmt.Fprint(s, e.Error())
}
