package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/custodia-labs/docvault/internal/logger"
)

// retryConfig bounds a retried adapter call.
type retryConfig struct {
	// maxAttempts is the total number of tries, including the first.
	maxAttempts int

	// initialDelay is the delay before the first retry.
	initialDelay time.Duration

	// maxDelay caps the exponential growth.
	maxDelay time.Duration
}

// defaultRetry is the pipeline's retry policy for transient adapter failures.
var defaultRetry = retryConfig{
	maxAttempts:  3,
	initialDelay: 500 * time.Millisecond,
	maxDelay:     10 * time.Second,
}

// withRetry runs fn up to cfg.maxAttempts times, backing off exponentially
// with jitter between attempts. Only errors accepted by retryable are
// retried; anything else, and context cancellation, fails immediately.
func withRetry(ctx context.Context, cfg retryConfig, op string, retryable func(error) bool, fn func(context.Context) error) error {
	if cfg.maxAttempts < 1 {
		cfg.maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.maxAttempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		logger.Warn("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt, cfg.maxAttempts, delay, lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, cfg.maxAttempts, lastErr)
}

// backoffDelay computes the delay before the next attempt: exponential
// growth capped at maxDelay, with up to 25% random jitter to spread
// concurrent retries.
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.maxDelay {
			delay = cfg.maxDelay
			break
		}
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
