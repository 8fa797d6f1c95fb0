// Package errors provides a status-carrying error for HTTP-facing
// boundaries, distinct from the domain error taxonomy defined by the
// backend and cache packages. No package in this module imports it.
package errors

import (
	"fmt"
	"net/http"
)

// Error pairs an HTTP status with optional response headers, for errors
// that need to cross a transport boundary as a status code rather than a
// Go error value.
type Error struct {
	Code    int
	Headers http.Header
	cause   error
}

// New constructs an Error for the given status and headers.
func New(code int, headers http.Header) *Error {
	return &Error{
		Code:    code,
		Headers: headers,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("error: code = %d headers = %v cause = %v", e.Code, e.Headers, e.cause)
}

func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}
