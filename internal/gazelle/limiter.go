package gazelle

import (
	"context"
	"sync"
	"time"
)

// minYield bounds how tightly Wait spins when the computed delay rounds
// to nothing.
const minYield = time.Millisecond

// Limiter enforces at most N calls per sliding window. Unlike a refilling
// token bucket it keeps a log of recent call times, so no window of the
// configured period ever observes more than N calls, regardless of how
// bursty the callers are. One Limiter is shared per site.
type Limiter struct {
	mu     sync.Mutex
	calls  int
	period time.Duration
	stamps []time.Time // recent call times, oldest first

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a Limiter allowing calls per period.
func NewLimiter(calls int, period time.Duration) *Limiter {
	return &Limiter{
		calls:  calls,
		period: period,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Wait blocks until a call slot is available, then claims it. When the
// window is full it sleeps exactly until the oldest in-window call
// expires and re-checks, so the long-run rate never exceeds calls/period.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		cutoff := now.Add(-l.period)

		// Drop calls that have left the window.
		for len(l.stamps) > 0 && !l.stamps[0].After(cutoff) {
			l.stamps = l.stamps[1:]
		}

		if len(l.stamps) < l.calls {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.stamps[0].Add(l.period).Sub(now)
		l.mu.Unlock()

		if wait < minYield {
			wait = minYield
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
