package session

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Backoff bounds for RetryWithExponentialBackoff.
var (
	BaseRetryDelay = 500 * time.Millisecond
	MaxRetryDelay  = 30 * time.Second
)

// RetryWithExponentialBackoff runs fn up to attempts times, sleeping with
// exponential backoff and ±20% jitter between failures. retryable decides
// which errors are worth another attempt; nil retries everything.
func RetryWithExponentialBackoff(ctx context.Context, logger *slog.Logger, operation string, attempts int, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := time.Duration(float64(backoff(attempt)) * (0.8 + rand.Float64()*0.4))

		logger.Warn("retrying", "op", operation, "attempt", attempt, "of", attempts, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "%s: %v", operation, err)
		case <-time.After(delay):
		}
	}
	return errors.Wrapf(err, "%s failed after %d attempts", operation, attempts)
}

// backoff is the un-jittered delay after the given failed attempt, doubling
// from BaseRetryDelay and capped at MaxRetryDelay.
func backoff(attempt int) time.Duration {
	delay := BaseRetryDelay
	for i := 1; i < attempt && delay < MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > MaxRetryDelay || delay <= 0 {
		delay = MaxRetryDelay
	}
	return delay
}

// ConnectWithRetry is Connect with an explicit retry budget. Only connection
// failures are retried; configuration and login failures return at once.
func (s *Session) ConnectWithRetry(ctx context.Context, attempts int) error {
	return RetryWithExponentialBackoff(ctx, s.logger, "connect", attempts,
		func(err error) bool { return errors.Is(err, ErrConnection) },
		func() error { return s.Connect(ctx) })
}
