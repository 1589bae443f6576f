// Package errs defines the coded error taxonomy shared by the suite and the twin.
//
// Suite-side codes separate setup failures (the scenario could not reach the
// behaviour under test) from assertion failures (the application misbehaved).
// Application-side codes shape the twin's HTTP error envelope.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is an error code.
type Code string

const (
	Configuration       Code = "configuration"
	AuthenticationSetup Code = "authentication_setup"
	Setup               Code = "setup"
	Assertion           Code = "assertion"

	InvalidArgument    Code = "invalid_argument"
	Unauthenticated    Code = "unauthenticated"
	PermissionDenied   Code = "permission_denied"
	NotFound           Code = "not_found"
	FailedPrecondition Code = "failed_precondition"
	Unavailable        Code = "unavailable"
	Internal           Code = "internal"
)

// maxBodyInMessage bounds how much of a response body is echoed by Error().
const maxBodyInMessage = 512

// Error is a coded error. Status and Body are set when the error was caused by
// an HTTP response the caller did not expect.
type Error struct {
	Code    Code
	Message string
	Status  int
	Body    []byte
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Status != 0 || len(e.Body) > 0 {
		body := string(e.Body)
		if len(body) > maxBodyInMessage {
			body = body[:maxBodyInMessage] + "... [truncated]"
		}
		msg = fmt.Sprintf("%s (status %d, body: %s)", msg, e.Status, body)
	}
	if e.Message != "" && e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// WithResponse creates a coded error that carries the offending response.
func WithResponse(code Code, message string, status int, body []byte) error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Body:    append([]byte(nil), body...),
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsProductDefect reports whether a failure should be attributed to the
// application under test. Only assertion failures qualify.
func IsProductDefect(err error) bool {
	return Is(err, Assertion)
}

// MessageOf returns a user-facing error message.
// Untyped errors collapse to "internal error" so the twin never leaks internals.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps error code to HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidArgument:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case FailedPrecondition:
		return http.StatusConflict
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
