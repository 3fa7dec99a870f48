package rate

import (
	"context"
	"time"
)

// Config holds the sliding window parameters.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Validate rejects non-positive limits.
func (c Config) Validate() error {
	if c.MaxRequests <= 0 || c.Window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Limiter decides whether an attempt under key is admitted.
type Limiter interface {
	Admit(ctx context.Context, key string) (bool, error)
}

// Clock supplies the time attempts are stamped with.
type Clock func() time.Time
