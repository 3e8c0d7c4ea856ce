package utils

import (
	"context"
	"time"
)

// DoWithBackoff runs fn up to maxAttempts times, doubling the wait between
// attempts starting from base. fn reports whether its error is worth another
// attempt; a non-retryable error returns immediately. Implemented as an
// explicit loop, never recursion.
func DoWithBackoff(ctx context.Context, maxAttempts int, base time.Duration, fn func(attempt int) (retry bool, err error)) error {
	var lastErr error
	delay := base
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retry, err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
