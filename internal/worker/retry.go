package worker

import (
	"context"
	"time"

	"github.com/code-100-precent/LingBook/pkg/synthesizer"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy retries transient synthesis failures with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep is replaced in tests; nil means a real timer.
	Sleep SleepFunc
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Backoff is the wait before retry n (1-based): BaseDelay, 2*BaseDelay, 4*BaseDelay...
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return base << (n - 1)
}

// Do calls fn until it succeeds, fails with a non-transient error, or the
// attempts run out. It returns the number of attempts made and the last error.
// A done ctx stops the loop and its error is returned as is.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	attempt := 0
	for attempt < limit {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}
		attempt++
		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if !synthesizer.IsTransient(err) || attempt == limit {
			break
		}
		if serr := sleep(ctx, p.Backoff(attempt)); serr != nil {
			return attempt, serr
		}
	}
	return attempt, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
