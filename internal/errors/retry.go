package errors

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"mediasvc/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first (default: 3)
	BaseDelay   time.Duration // Initial backoff interval (default: 100ms)
	MaxDelay    time.Duration // Upper bound between attempts (default: 2s)
}

// DefaultRetryConfig returns the defaults used for object store calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	return c
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// Retry runs fn with exponential backoff, retrying only errors IsTransient accepts.
func Retry(ctx context.Context, config RetryConfig, logger logging.Logger, fn RetryableFunc) error {
	config = config.normalized()
	logger = logging.OrNop(logger)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = config.BaseDelay
	expo.MaxInterval = config.MaxDelay
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(expo, uint64(config.MaxAttempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("Attempt %d/%d failed: %v (retrying in %s)", attempt, config.MaxAttempts, err, wait)
	})
}
