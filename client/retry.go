package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetryInterval caps a single wait between attempts.
const maxRetryInterval = time.Hour

// newBackOff returns a schedule of Delay, 2*Delay, 4*Delay, ... that stops
// after MaxRetries retries or when ctx is done.
func newBackOff(ctx context.Context, policy RetryPolicy) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     policy.Delay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxRetryInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(policy.MaxRetries)), ctx)
}

// retry runs op until it succeeds, returns a non-retryable error, or the
// policy is exhausted. notify is called before each wait.
func retry(ctx context.Context, policy RetryPolicy, op func() error, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, newBackOff(ctx, policy), notify)
}
