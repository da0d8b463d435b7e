package gateway

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable signals the gateway could not be reached or timed out.
	ErrUnavailable = errors.New("gateway: unavailable")
	// ErrUnauthorized signals missing or expired credentials.
	ErrUnauthorized = errors.New("gateway: unauthorized")
	// ErrForbidden signals the acting user does not own the target record.
	ErrForbidden = errors.New("gateway: forbidden")
	// ErrNotFound signals the target record does not exist.
	ErrNotFound = errors.New("gateway: not found")
	// ErrConflict signals a uniqueness violation.
	ErrConflict = errors.New("gateway: conflict")
	// ErrInvalid signals the gateway rejected the payload.
	ErrInvalid = errors.New("gateway: invalid request")
	// ErrMalformed signals a response that does not match the expected schema.
	ErrMalformed = errors.New("gateway: malformed response")
)

// Kind classifies gateway failures for user-facing messages.
type Kind string

const (
	KindUnavailable  Kind = "unavailable"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalid      Kind = "invalid"
	KindMalformed    Kind = "malformed"
	KindCanceled     Kind = "canceled"
	KindUnknown      Kind = "unknown"
)

// KindOf maps an error returned by any gateway to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	default:
		return KindUnknown
	}
}
