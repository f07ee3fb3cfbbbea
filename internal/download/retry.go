package download

import (
	"context"
	"math/rand/v2"
	"time"
)

const maxBackoffShift = 20

// RetryPolicy runs one burst of attempts with exponential backoff and jitter.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration

	// Jitter returns a value in [0, n). Nil uses math/rand.
	Jitter func(n int64) int64
}

// NewRetryPolicy builds the policy described by opts.
func NewRetryPolicy(opts Options) RetryPolicy {
	return RetryPolicy{
		MaxRetries: opts.MaxRetries,
		BaseDelay:  opts.RetryDelay,
		MaxJitter:  opts.MaxJitter,
	}
}

// Delay returns the wait before retry n (0-based): BaseDelay*2^n plus jitter.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > maxBackoffShift {
		n = maxBackoffShift
	}
	delay := p.BaseDelay << n
	if p.MaxJitter > 0 {
		jitter := p.Jitter
		if jitter == nil {
			jitter = rand.Int64N
		}
		delay += time.Duration(jitter(int64(p.MaxJitter)))
	}
	return delay
}

// Do calls fn until it succeeds, MaxRetries retries are spent, or ctx ends.
// attempt is 0 for the first call. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= p.MaxRetries {
			return err
		}
		if sleepErr := sleep(ctx, p.Delay(attempt)); sleepErr != nil {
			return sleepErr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
