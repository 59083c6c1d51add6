package history

import (
	"errors"
	"fmt"
)

// Kind discriminates the failures a lookup can end with.
type Kind string

const (
	// KindFetchUnavailable: the profile source answered with a non-success status
	// (not found, rate limited, server error).
	KindFetchUnavailable Kind = "fetch-unavailable"

	// KindFetchTransport: the request never produced a usable response
	// (connection, protocol, timeout).
	KindFetchTransport Kind = "fetch-transport"

	// KindFetchMalformed: the response body did not parse as a profile.
	KindFetchMalformed Kind = "fetch-malformed"

	// KindStorage: any History Store failure.
	KindStorage Kind = "storage"
)

// Error is the single failure type surfaced by the store, the fetcher and the
// resolver. The service boundary maps Kind to transport status codes.
type Error struct {
	Kind    Kind
	Message string

	// Status is the upstream HTTP status for KindFetchUnavailable, else 0.
	Status int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is / errors.As on the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewUnavailable builds a KindFetchUnavailable error for an upstream status.
func NewUnavailable(status int, message string) *Error {
	return &Error{Kind: KindFetchUnavailable, Status: status, Message: message}
}

// NewTransport builds a KindFetchTransport error.
func NewTransport(message string, err error) *Error {
	return &Error{Kind: KindFetchTransport, Message: message, Err: err}
}

// NewMalformed builds a KindFetchMalformed error.
func NewMalformed(message string, err error) *Error {
	return &Error{Kind: KindFetchMalformed, Message: message, Err: err}
}

// NewStorage builds a KindStorage error.
func NewStorage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// KindOf extracts the Kind of err. Errors outside the taxonomy report ok=false.
func KindOf(err error) (Kind, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind, true
	}
	return "", false
}

// IsFetchFailure reports whether err means "could not refresh now".
func IsFetchFailure(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	return k == KindFetchUnavailable || k == KindFetchTransport || k == KindFetchMalformed
}

// IsStorageFailure reports whether err came from the History Store.
func IsStorageFailure(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindStorage
}
