package rate

import "errors"

var (
	// ErrRateLimited is returned when a counter exceeds its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when the backing store cannot be reached.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
