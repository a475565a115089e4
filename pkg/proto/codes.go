package proto

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

// ErrorCode classifies a handler error for the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, apperrors.ErrBackendNotFound):
		return CodeNotFound
	case errors.Is(err, apperrors.ErrUnsupportedEngine):
		return CodeUnsupported
	case errors.Is(err, apperrors.ErrNoBackendsEnabled):
		return CodeNoBackends
	case errors.Is(err, apperrors.ErrBackendTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, apperrors.ErrBackendUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// CodeError turns a wire code back into an error wrapping the matching
// sentinel.
func CodeError(code, message string) error {
	var sentinel error
	switch code {
	case CodeInvalidInput:
		sentinel = apperrors.ErrInvalidInput
	case CodeNotFound:
		sentinel = apperrors.ErrBackendNotFound
	case CodeUnsupported:
		sentinel = apperrors.ErrUnsupportedEngine
	case CodeNoBackends:
		sentinel = apperrors.ErrNoBackendsEnabled
	case CodeTimeout:
		sentinel = apperrors.ErrBackendTimeout
	case CodeUnavailable:
		sentinel = apperrors.ErrBackendUnavailable
	default:
		sentinel = apperrors.ErrInternal
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}

// Rejection classifies a per-document error for the wire. It returns "" for
// nil.
func Rejection(err error) string {
	switch {
	case err == nil:
		return ""
	case apperrors.IsTransient(err):
		return RejectionTransient
	default:
		return RejectionPermanent
	}
}

// RejectionError is the inverse of Rejection.
func RejectionError(rejection, reason string) error {
	switch rejection {
	case "":
		return nil
	case RejectionTransient:
		return apperrors.Transient(errors.New(reason))
	default:
		return apperrors.Permanent("%s", reason)
	}
}
