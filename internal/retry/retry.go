// Package retry runs provider calls with bounded attempts and exponential
// backoff. Only errors classified as provider failures are retried.
package retry

import (
	"context"
	"time"

	"github.com/forPelevin/vertclip/internal/failure"
)

type Policy struct {
	Attempts int
	Backoff  time.Duration
	// MaxBackoff caps the delay between attempts. Zero means 8x Backoff.
	MaxBackoff time.Duration
	// Timeout bounds every single attempt. Zero leaves the attempt unbounded.
	Timeout time.Duration
	// OnRetry is called before sleeping ahead of attempt n+1.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for n := 1; n <= attempts; n++ {
		err = call(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !failure.Retryable(err) || n == attempts {
			return err
		}
		wait := p.delay(n)
		if p.OnRetry != nil {
			p.OnRetry(n, err, wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

func call(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(actx)
	if err != nil && ctx.Err() == nil && actx.Err() == context.DeadlineExceeded {
		return failure.Wrap(failure.ErrProvider, "timeout after "+timeout.String(), err)
	}
	return err
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = 8 * p.Backoff
	}
	d := p.Backoff << (attempt - 1)
	if d <= 0 || d > limit {
		return limit
	}
	return d
}
