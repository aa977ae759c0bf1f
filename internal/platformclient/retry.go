package platformclient

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy models the per-remote-call retry behavior as a small value
// type rather than an ad-hoc loop, so both the resty-backed Agent Platform
// client and the Vector Store client (whose gRPC path does not go through
// resty's own retry machinery) can share one implementation.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches spec.md §4.A/§7: one attempt plus up to 3
// retries with exponential backoff. Do retries every error fn returns, so fn
// decides which failures (transport errors, 5xx) count as retryable.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 4,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// Do runs fn, retrying up to MaxAttempts-1 additional times on error with
// exponential backoff and jitter. It stops retrying and returns the last
// error if ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.backoff(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	jittered := base * (0.5 + rand.Float64()*0.5)
	d := time.Duration(jittered)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
