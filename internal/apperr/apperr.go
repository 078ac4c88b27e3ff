// Package apperr carries business-rule failures together with the HTTP status
// they should be answered with.
package apperr

import (
	"errors"
	"net/http"
)

type Error struct {
	Status  int
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by status and message so package-level sentinels
// keep working after WithDetails or Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status && e.Message == t.Message
}

// WithDetails returns a copy carrying extra response details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap returns a copy with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

func BadRequest(message string) *Error   { return New(http.StatusBadRequest, message) }
func Unauthorized(message string) *Error { return New(http.StatusUnauthorized, message) }
func Forbidden(message string) *Error    { return New(http.StatusForbidden, message) }
func NotFound(message string) *Error     { return New(http.StatusNotFound, message) }
func Conflict(message string) *Error     { return New(http.StatusConflict, message) }
func Unavailable(message string) *Error  { return New(http.StatusServiceUnavailable, message) }

// Unprocessable is for well-formed input that can never succeed, however
// often it is retried.
func Unprocessable(message string) *Error { return New(http.StatusUnprocessableEntity, message) }

// Upstream reports a payment provider or other dependency failure.
func Upstream(message string, cause error) *Error {
	return &Error{Status: http.StatusBadGateway, Message: message, Err: cause}
}

func Internal(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "internal server error", Err: cause}
}

// From maps any error into the taxonomy. Unknown errors become internal errors.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// StatusOf returns the HTTP status err would be answered with.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return From(err).Status
}

// IsTransient reports whether retrying the same operation may succeed.
func IsTransient(err error) bool {
	switch StatusOf(err) {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}
