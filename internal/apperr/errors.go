// Package apperr defines the error classes shared by every layer of the
// orders service. Handlers map them to HTTP statuses; everything below
// the transport wraps them with context via fmt.Errorf and %w.
package apperr

import "errors"

var (
	// ErrNotFound - a locally persisted resource (an order) does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrRemoteNotFound - an upstream service answered, but the referenced
	// product or user does not exist there.
	ErrRemoteNotFound = errors.New("remote resource not found")

	// ErrConflict - currency mismatch, mutation of a cancelled order, or an
	// optimistic-version clash.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable - circuit breaker open, all credential grants failed,
	// or an upstream call timed out.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrAccessDenied - caller lacks the required privilege or ownership.
	ErrAccessDenied = errors.New("access denied")
)
