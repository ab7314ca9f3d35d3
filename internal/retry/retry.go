// Package retry runs fallible operations under a capped exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxTries   uint
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter is the randomization factor applied to every delay (0.5 means +/-50%).
	Jitter float64
}

// Generation is used for calls to the generative backend.
var Generation = Policy{
	MaxTries:   5,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
	Multiplier: 2,
	Jitter:     0.5,
}

// Storage is used for writes that may hit a locked database.
var Storage = Policy{
	MaxTries:   5,
	BaseDelay:  50 * time.Millisecond,
	MaxDelay:   time.Second,
	Multiplier: 2,
	Jitter:     0.2,
}

// Do calls op until it succeeds, returns an error that retryable rejects, the
// context ends, or the policy runs out of tries. The last error is returned.
// A nil retryable retries every error.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, op func(context.Context) (T, error), opts ...Option) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(max(p.MaxTries, 1)),
	}
	if o.notify != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(o.notify))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && retryable != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, retryOpts...)
}

type options struct {
	notify func(error, time.Duration)
}

// Option tweaks a single Do call.
type Option func(*options)

// WithNotify registers a callback invoked before each wait.
func WithNotify(fn func(err error, next time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}
