// Package apperr defines the error taxonomy the control-plane surfaces to
// its callers, independent of any transport.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the error taxonomy buckets an error belongs to.
type Kind int

const (
	// KindInternal is the catch-all for errors that are not one of the
	// named kinds below.
	KindInternal Kind = iota
	KindNotFound
	KindInvalidName
	KindTooLarge
	KindDuplicate
	KindNotOwner
	KindIncomplete
	KindRateExceeded
	KindConcurrencyExceeded
	KindTimeout
	KindChildFailure
	KindMetricsInvalid
	KindTrackerFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidName:
		return "InvalidName"
	case KindTooLarge:
		return "TooLarge"
	case KindDuplicate:
		return "Duplicate"
	case KindNotOwner:
		return "NotOwner"
	case KindIncomplete:
		return "Incomplete"
	case KindRateExceeded:
		return "RateExceeded"
	case KindConcurrencyExceeded:
		return "ConcurrencyExceeded"
	case KindTimeout:
		return "Timeout"
	case KindChildFailure:
		return "ChildFailure"
	case KindMetricsInvalid:
		return "MetricsInvalid"
	case KindTrackerFailure:
		return "TrackerFailure"
	default:
		return "Internal"
	}
}

// Error is a taxonomy-tagged error. The message is safe to log; Internal
// errors should not have their message shown to callers (see
// internal/httpapi's writeErr).
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds a new tagged error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags an existing error with a kind, preserving it as the cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, err: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is tagged with kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a Kind to the status code the HTTP layer returns for
// it, per spec.md §6/§7.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return 404
	case KindNotOwner:
		return 403
	case KindInvalidName, KindTooLarge, KindDuplicate, KindIncomplete,
		KindRateExceeded, KindConcurrencyExceeded:
		return 400
	default:
		return 500
	}
}
