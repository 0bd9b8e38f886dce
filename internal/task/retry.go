package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy is a first-class retry configuration: total attempt count and
// the fixed delay between attempts. The backoff is deliberately constant,
// not exponential.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Backoff is the fixed delay between consecutive attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns the production retry policy: three attempts
// with a fixed 60-second delay between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     60 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = def.Backoff
	}
	return p
}

// Retrier executes an operation with bounded automatic retry. Every retry
// is a fresh attempt of the entire operation; the delay is waited out on a
// timer, never busy-waited, and respects context cancellation.
type Retrier struct {
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetrier creates a Retrier with the given policy. Invalid policy fields
// fall back to the defaults.
func NewRetrier(policy RetryPolicy, logger *slog.Logger) *Retrier {
	return &Retrier{
		policy: policy.withDefaults(),
		logger: logger,
	}
}

// Do runs op until it succeeds or the policy's attempts are exhausted.
// It returns the number of attempts actually made. After the final failure
// the last error is returned wrapped; it is never silently dropped.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("retry aborted: %w", err)
		}

		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		r.logger.Warn("attempt failed",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"error", err)

		if attempt == r.policy.MaxAttempts {
			break
		}

		select {
		case <-time.After(r.policy.Backoff):
		case <-ctx.Done():
			return attempt, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return r.policy.MaxAttempts, fmt.Errorf("all %d attempts failed: %w", r.policy.MaxAttempts, lastErr)
}
