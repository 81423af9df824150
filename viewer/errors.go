package viewer

import "errors"

// Error taxonomy for selection and connection operations. Callers are
// expected to test with errors.Is; request failures are wrapped with the
// underlying cause.
var (
	// ErrCapacityExceeded is returned by SelectSeat before any network call
	// when the selection already holds the maximum number of seats.
	ErrCapacityExceeded = errors.New("selection is at capacity")

	// ErrLockConflict means the server rejected a lock because the seat is
	// no longer available, or a local precondition showed it taken.
	ErrLockConflict = errors.New("seat is no longer available")

	// ErrNetworkFailure wraps transport-level failures on availability
	// store requests.
	ErrNetworkFailure = errors.New("availability store request failed")

	// ErrReconnectExhausted is reported through the connection state
	// callback when the bounded reconnect policy gives up.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)
