// Package apperr classifies errors into the kinds the gateway reports:
// invalid input, not found, and unavailable backing stores.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
)

type kindError struct {
	msg   string
	kinds []error
	cause error
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return e.kinds
	}
	return append(append([]error{}, e.kinds...), e.cause)
}

// New returns an error with message msg that matches every kind via errors.Is.
func New(msg string, kinds ...error) error {
	return &kindError{msg: msg, kinds: kinds}
}

// Unavailable wraps a store or transport failure. The result matches both
// ErrUnavailable and err.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{
		msg:   op + ": " + err.Error(),
		kinds: []error{ErrUnavailable},
		cause: err,
	}
}

// HTTPStatus maps an error to the status code reported to clients.
// NotFound wins over InvalidInput when an error carries both.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether err was caused by the caller.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound)
}
