// File: facade/retry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/momentics/hioload-vt/api"
)

// RetryPolicy configures exponential backoff. Zero fields keep the backoff
// library defaults; MaxAttempts of zero means no attempt limit.
type RetryPolicy struct {
	MaxAttempts uint
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxElapsed  time.Duration
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	return b
}

func (p RetryPolicy) wrap(work api.Work) api.Work {
	return func(ctx context.Context) (any, error) {
		return invoke(ctx, &p, func() (any, error) { return work(ctx) })
	}
}

// invoke calls fn once, or under the retry policy when p is set. A failure
// after ctx ended is never retried.
func invoke[R any](ctx context.Context, p *RetryPolicy, fn func() (R, error)) (R, error) {
	if p == nil {
		return fn()
	}
	opts := []backoff.RetryOption{backoff.WithBackOff(p.backOff())}
	if p.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxAttempts))
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}
	return backoff.Retry[R](ctx, func() (R, error) {
		v, err := fn()
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
