package call

import "errors"

var (
	// ErrCallClosed is returned when an operation targets a call that has
	// reached its terminal state.
	ErrCallClosed = errors.New("call: call is closed")

	// ErrDuplicateCall is returned by Registry.Register on a call ID
	// collision.
	ErrDuplicateCall = errors.New("call: call id already registered")

	// ErrCallNotFound is returned by Registry lookups for unknown IDs.
	ErrCallNotFound = errors.New("call: call not found")
)
