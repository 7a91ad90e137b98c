package rate

import "errors"

var (
	// ErrRateLimited is returned when a counter passed its ceiling.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps any kvstore failure.
	ErrStoreUnavailable = errors.New("rate store unavailable")
	// ErrCorruptCounter is returned when a stored counter is not a
	// non-negative integer. Callers treat it like a store failure.
	ErrCorruptCounter = errors.New("rate counter corrupt")
)
