package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrQueueEmpty is returned by PeekOldest when no mutations are pending.
	ErrQueueEmpty = errors.New("persistence: mutation queue empty")
	// ErrConstraintViolation is returned when a write breaks a model
	// invariant, such as an event referencing a missing calendar.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
