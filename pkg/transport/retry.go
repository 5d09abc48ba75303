package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled       bool          // Retry GET requests at all
	MaxRetries    int           // Retries after the first attempt
	InitialDelay  time.Duration // Delay before the first retry
	MaxDelay      time.Duration // Upper bound for one delay
	BackoffFactor float64       // Exponential backoff multiplier
	Jitter        bool          // Add ±25% randomness to each delay
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:       true,
		MaxRetries:    3,
		InitialDelay:  300 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

func (c RetryConfig) attemptsFor(method string) int {
	if !c.Enabled || method != http.MethodGet || c.MaxRetries <= 0 {
		return 1
	}
	return c.MaxRetries + 1
}

// IsRetryable reports whether err is a network failure, a 429 or a 5xx.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	var de *decodeError
	return !errors.As(err, &de)
}

// retry runs fn up to attempts times, sleeping with exponential backoff
// between retryable failures.
func retry(ctx context.Context, cfg RetryConfig, attempts int, fn func(attempt int) error, onRetry func(attempt int, delay time.Duration, err error)) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		actualDelay := delay
		if cfg.Jitter && delay > 0 {
			// ±25%
			jitterRange := delay / 4
			if jitterRange > 0 {
				actualDelay = delay - jitterRange + time.Duration(rand.Int63n(int64(jitterRange)*2))
			}
		}
		if onRetry != nil {
			onRetry(attempt, actualDelay, err)
		}

		timer := time.NewTimer(actualDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		if cfg.BackoffFactor > 0 {
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		}
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
