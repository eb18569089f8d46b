package gazelle

import (
	"context"
	"fmt"
	"time"
)

const (
	// defaultMaxAttempts is the number of tries before retry gives up.
	defaultMaxAttempts = 3

	// defaultRetryDelay is the fixed wait between attempts.
	defaultRetryDelay = 2 * time.Second
)

// retry executes fn up to maxAttempts times with a fixed inter-attempt
// delay. Only transient transport failures are retried; service errors
// surface immediately. After the last transient failure the error is
// wrapped with [ErrTransient] so callers can branch on errors.Is.
func retry(ctx context.Context, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%w: all %d attempts failed: %v", ErrTransient, maxAttempts, lastErr)
}
