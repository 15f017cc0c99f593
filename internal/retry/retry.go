// Package retry provides an explicit, composable retry policy for
// fallible external calls. Only errors the caller classifies as
// retryable are retried; everything else fails immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded exponential backoff schedule. The attempt
// cap guarantees termination even under sustained rate-limiting.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	InitialWait time.Duration // wait before the second attempt
	Multiplier  float64       // wait growth factor
}

// Default matches the provider retry budget used across the pipeline:
// five attempts starting at one second and doubling.
var Default = Policy{
	MaxAttempts: 5,
	InitialWait: time.Second,
	Multiplier:  2,
}

// Do runs fn, retrying per the policy while retryable(err) holds.
// The last error is returned once attempts are exhausted or a
// non-retryable error occurs.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, retryable func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialWait
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // the attempt count bounds total wait

	op := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
}
