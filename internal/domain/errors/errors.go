package errors

import "errors"

var (
	// ErrNotFound means no record matched the lookup key.
	ErrNotFound = errors.New("record not found")

	// ErrStaleEvent means the store already holds state from a newer
	// billing event; the write was refused.
	ErrStaleEvent = errors.New("event is older than stored state")

	// ErrDuplicate means a unique key constraint rejected a create.
	ErrDuplicate = errors.New("record already exists")
)
