package link

import (
	"context"
	"time"
)

// DefaultBackoff is the wait between reconnect attempts.
const DefaultBackoff = 3 * time.Second

// RetryPolicy decides how long a slot waits before reconnecting.
// MaxAttempts 0 means retry forever.
type RetryPolicy struct {
	Backoff     time.Duration
	MaxAttempts int
}

// FixedBackoff retries forever, waiting d between attempts.
func FixedBackoff(d time.Duration) RetryPolicy {
	if d <= 0 {
		d = DefaultBackoff
	}
	return RetryPolicy{Backoff: d}
}

// Next returns the wait before attempt (1-based) and whether to try at all.
func (p RetryPolicy) Next(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return 0, false
	}
	return p.Backoff, true
}

// sleep waits d or until ctx is done. It reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
