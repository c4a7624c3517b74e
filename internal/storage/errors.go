package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLockNotHeld is returned when extending or releasing a lock the
	// caller does not hold.
	ErrLockNotHeld = errors.New("lock not held")
)
