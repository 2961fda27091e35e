package canvas

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"course-report/internal/model"
)

// backoffDelay calculates the wait before the next attempt, attempt being the
// 1-based number of the attempt that was just throttled.
func backoffDelay(cfg model.RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := cfg.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	// Calculate delay with exponential backoff
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))

	// Cap at max delay
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	// +/-10% so parallel fetches do not retry in lockstep
	if cfg.Jitter && delay > 0 {
		jitter := time.Duration(float64(delay) * 0.2 * (rand.Float64() - 0.5))
		delay += jitter
	}
	return delay
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
