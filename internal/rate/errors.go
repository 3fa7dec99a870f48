package rate

import "errors"

var (
	// ErrUnavailable wraps backend failures of the Redis limiter.
	ErrUnavailable = errors.New("rate limiter unavailable")
	// ErrInvalidConfig is returned for non-positive limits.
	ErrInvalidConfig = errors.New("invalid rate limit config")
)
