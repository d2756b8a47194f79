package http

import "github.com/cockroachdb/errors"

// Error carries an HTTP status code alongside an underlying error.
// A handler may return one to pick the status of the failure response;
// every other handler error is reported as an internal server error.
type Error struct {
	code int
	err  error
}

// NewError wraps err with a status code.
func NewError(code int, err error) *Error {
	return &Error{code: code, err: err}
}

// Errorf builds a coded error from a format string.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{code: code, err: errors.Newf(format, args...)}
}

// Code returns the HTTP status code.
func (e *Error) Code() int { return e.code }

func (e *Error) Error() string {
	if e.err == nil {
		return StatusText(e.code)
	}
	return StatusText(e.code) + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// CodeOf returns the status code if err is or wraps an *Error, and
// StatusInternalServerError otherwise.
func CodeOf(err error) int {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return StatusInternalServerError
}
