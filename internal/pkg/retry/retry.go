// Package retry wraps avast/retry-go with the small policy shape the
// submitter and the fee oracle share.
package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go"
)

type Policy struct {
	MaxAttempts uint
	Backoff     time.Duration
	// Retryable decides whether an error earns another attempt. Nil retries
	// every error.
	Retryable func(error) bool
	// OnRetry is called after each retryable failure, the last one included,
	// with the 0-based attempt that failed.
	OnRetry func(attempt uint, err error)
}

// Do runs fn until it succeeds, the policy gives up or ctx ends. The error
// returned is the last one fn produced, or ctx.Err().
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.Delay(p.Backoff),
		retrygo.DelayType(retrygo.FixedDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return p.Retryable == nil || p.Retryable(err)
		}),
	}
	if p.OnRetry != nil {
		opts = append(opts, retrygo.OnRetry(p.OnRetry))
	}
	return retrygo.Do(func() error { return fn(ctx) }, opts...)
}
