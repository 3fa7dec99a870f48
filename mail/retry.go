package mail

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds retries of a transient send failure.
type RetryConfig struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnRetry observes each failed attempt before the next one.
	OnRetry func(err error, wait time.Duration)
}

type retrying struct {
	next Mailer
	cfg  RetryConfig
}

// WithRetry wraps next with exponential backoff. Invalid messages are not
// retried; the context ends retries early.
func WithRetry(next Mailer, cfg RetryConfig) Mailer {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	return &retrying{next: next, cfg: cfg}
}

func (r *retrying) Send(ctx context.Context, msg Message) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.InitialInterval
	exp.MaxInterval = r.cfg.MaxInterval
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, r.cfg.MaxAttempts-1), ctx)

	op := func() error {
		err := r.next.Send(ctx, msg)
		if errors.Is(err, ErrInvalidMessage) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, policy, r.cfg.OnRetry)
}
