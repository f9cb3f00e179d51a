package retry

import (
	"context"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	goretry "github.com/sethvargo/go-retry"
)

// Policy is the retry behaviour shared by every outbound provider call.
// MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is a fraction of the delay, e.g. 0.2 for +/- 20%
	Jitter float64
	// Retryable decides whether an error is worth another attempt.
	// Defaults to types.IsTransient.
	Retryable func(error) bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
	}
}

func FromConfig(cfg types.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}.normalized()
}

func (p Policy) normalized() Policy {
	q := p
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 1
	}
	if q.BaseDelay <= 0 {
		q.BaseDelay = 200 * time.Millisecond
	}
	if q.MaxDelay < q.BaseDelay {
		q.MaxDelay = q.BaseDelay
	}
	if q.Jitter < 0 {
		q.Jitter = 0
	}
	if q.Jitter > 1 {
		q.Jitter = 1
	}
	if q.Retryable == nil {
		q.Retryable = types.IsTransient
	}
	return q
}

func (p Policy) backoff() goretry.Backoff {
	b := goretry.NewExponential(p.BaseDelay)
	b = goretry.WithCappedDuration(p.MaxDelay, b)
	if p.Jitter > 0 {
		b = goretry.WithJitterPercent(uint64(p.Jitter*100), b)
	}
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// attempts, or ctx is done. The last error from fn is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	q := p.normalized()
	return goretry.Do(ctx, q.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && q.Retryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}
