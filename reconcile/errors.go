package reconcile

import (
	"errors"
	"fmt"

	"recreo/gateway"
)

var (
	// ErrNotFound signals the target record is no longer in the store. During
	// reconciliation it is a benign no-op.
	ErrNotFound = errors.New("reconcile: record not found")
	// ErrStoreClosed signals the owning screen was torn down. Results arriving
	// afterwards are discarded.
	ErrStoreClosed = errors.New("reconcile: store closed")
	// ErrDuplicateID signals an insert of an id already present.
	ErrDuplicateID = errors.New("reconcile: duplicate record id")

	errInProgress = errors.New("reconcile: change in progress")
)

// Op names a mutation kind.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpLoad marks a failed screen refresh. It never rolls anything back.
	OpLoad Op = "load"
)

// ValidationError is returned before any local effect when input is invalid.
// It never reaches a gateway.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "reconcile: invalid input: " + e.Reason
	}
	return fmt.Sprintf("reconcile: invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// GatewayError wraps any remote failure. It always triggers rollback; Kind
// only selects the user-visible message.
type GatewayError struct {
	Op   Op
	Kind gateway.Kind
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("reconcile: %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// UserMessage is the text shown in a dismissible notice.
func (e *GatewayError) UserMessage() string {
	var verb string
	switch e.Op {
	case OpCreate:
		verb = "save"
	case OpUpdate:
		verb = "update"
	case OpDelete:
		verb = "delete"
	case OpLoad:
		verb = "load"
	default:
		verb = "complete"
	}
	switch e.Kind {
	case gateway.KindUnavailable:
		return fmt.Sprintf("Could not %s: the server is unreachable. Please try again.", verb)
	case gateway.KindUnauthorized:
		return fmt.Sprintf("Could not %s: your session has expired. Please sign in again.", verb)
	case gateway.KindForbidden:
		return fmt.Sprintf("Could not %s: you can only change your own items.", verb)
	case gateway.KindInvalid, gateway.KindConflict:
		return fmt.Sprintf("Could not %s: the server rejected the change.", verb)
	case gateway.KindCanceled:
		return fmt.Sprintf("Could not %s: the request was cancelled.", verb)
	default:
		return fmt.Sprintf("Could not %s. Please try again.", verb)
	}
}

// LoadError wraps a failed query so it can be reported like a mutation
// failure.
func LoadError(err error) *GatewayError {
	return newGatewayError(OpLoad, err)
}

func newGatewayError(op Op, err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &GatewayError{Op: op, Kind: gateway.KindOf(err), Err: err}
}

func asValidation(err error) *ValidationError {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	return &ValidationError{Reason: err.Error()}
}
