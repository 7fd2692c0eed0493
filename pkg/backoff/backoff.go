// Package backoff retries transient failures with capped exponential delays.
package backoff

import (
	"context"
	"fmt"
	"time"
)

// Config controls retry behaviour.
type Config struct {
	// MaxAttempts is the total number of calls including the first attempt.
	MaxAttempts int
	// BaseDelay is the delay after the first failure; it doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the delay growth. Zero means no cap.
	MaxDelay time.Duration
	// OnRetry is called after a failed attempt, before the next delay.
	// attempt is 1-indexed (1 = first attempt just failed).
	OnRetry func(attempt int, err error)
}

// Do calls fn up to cfg.MaxAttempts times.
//
// Delay schedule with BaseDelay=500ms, MaxDelay=5s:
//
//	attempt 1 fails → wait 500ms
//	attempt 2 fails → wait 1s
//	attempt 3 fails → wait 2s
//	attempt 4 fails → wait 4s
//	attempt 5 fails → wait 5s (capped)
//
// Returns nil on first success, or the last error once attempts run out.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("backoff cancelled after attempt %d: %w", attempt, ctx.Err())
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
