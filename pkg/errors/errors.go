// Package errors defines the failure kinds shared across the service and
// how each one surfaces over HTTP. Wrap a kind with %w to classify an error.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfigInvalid             = errors.New("invalid configuration")
	ErrBackendUnavailable        = errors.New("backend unavailable")
	ErrBackendTimeout            = errors.New("backend timed out")
	ErrDocumentRejectedPermanent = errors.New("document rejected permanently")
	ErrDocumentRejectedTransient = errors.New("document rejected transiently")
	ErrNoBackendsEnabled         = errors.New("no backends enabled")
	ErrUnsupportedEngine         = errors.New("engine does not support this operation")
	ErrBackendNotFound           = errors.New("backend not found")
	ErrInvalidInput              = errors.New("invalid input")
	ErrInternal                  = errors.New("internal error")
)

// statuses maps kinds to HTTP codes; the first kind err matches wins.
var statuses = []struct {
	kind   error
	status int
}{
	{ErrBackendNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrUnsupportedEngine, http.StatusBadRequest},
	{ErrConfigInvalid, http.StatusBadRequest},
	{ErrBackendTimeout, http.StatusGatewayTimeout},
	{ErrNoBackendsEnabled, http.StatusServiceUnavailable},
	{ErrBackendUnavailable, http.StatusServiceUnavailable},
}

// publicError carries a message safe to show clients and a status that
// overrides the kind's default.
type publicError struct {
	kind   error
	status int
	msg    string
}

func (e *publicError) Error() string { return e.kind.Error() + ": " + e.msg }
func (e *publicError) Unwrap() error { return e.kind }

// Public returns an error of the given kind whose message reaches the client
// verbatim with the given status.
func Public(kind error, status int, msg string) error {
	return &publicError{kind: kind, status: status, msg: msg}
}

// Describe picks the status and client-facing message for err. Internal
// failures are reported with fallback instead of their own text.
func Describe(err error, fallback string) (status int, msg string) {
	var pe *publicError
	if errors.As(err, &pe) {
		return pe.status, pe.msg
	}
	for _, s := range statuses {
		if errors.Is(err, s.kind) {
			return s.status, err.Error()
		}
	}
	return http.StatusInternalServerError, fallback
}

// Permanent returns a permanent document rejection with the formatted reason.
func Permanent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDocumentRejectedPermanent, fmt.Sprintf(format, args...))
}

// Transient marks cause as a retryable document rejection. A cause that is
// already transient is returned as is.
func Transient(cause error) error {
	if IsTransient(cause) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrDocumentRejectedTransient, cause)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrDocumentRejectedTransient)
}
