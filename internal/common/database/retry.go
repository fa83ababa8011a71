package database

import (
	"context"
	"fmt"
	"time"

	"tucomercio/internal/common/logger"
)

// RetryWithBackoff runs operation until it succeeds, doubling the delay after every failure.
func RetryWithBackoff(ctx context.Context, name string, maxRetries int, initialDelay time.Duration, log logger.Logger, operation func() error) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		log.Warn(fmt.Sprintf("%s failed, retrying", name), map[string]interface{}{
			"error":       err,
			"attempt":     i + 1,
			"maxRetries":  maxRetries,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, err)
}
