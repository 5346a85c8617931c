package errs

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff with optional jitter.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// ZoteroRetryConfig matches spec §4.6: base 1s, factor 2, cap 30s, three
// attempts, ±25% jitter. MaxRetries counts retries after the first attempt,
// so three total attempts is MaxRetries: 2.
func ZoteroRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2, Jitter: true}
}

// QdrantUpsertRetryConfig gives three attempts with waits of 1s then 2s
// between them, no jitter (the 4s cap is never reached). MaxRetries counts
// retries after the first attempt, so three total attempts is MaxRetries: 2.
func QdrantUpsertRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2, Jitter: false}
}

// Retry runs fn with exponential backoff, respecting ctx cancellation.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err != nil {
			lastErr = err
			if attempt >= cfg.MaxRetries {
				break
			}
			wait := delay
			if cfg.Jitter {
				jitter := 0.75 + rand.Float64()*0.5 // ±25%
				wait = time.Duration(float64(delay) * jitter)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
