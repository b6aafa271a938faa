// Package retry provides a generic exponential-backoff executor for fallible
// operations. Storage writes and outbound API calls use different presets:
// storage transients usually clear fast, API failures need more room.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config controls the backoff schedule. Delay before attempt n+1 is
// min(InitialDelay * Factor^(n-1), MaxDelay) plus a symmetric random jitter
// of up to Jitter*delay.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       float64 // fraction of the delay, 0..1
}

// StoragePreset suits correlation-store reads and writes.
func StoragePreset() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Factor:       2,
		Jitter:       0.2,
	}
}

// APIPreset suits outbound REST calls.
func APIPreset() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2,
		Jitter:       0.2,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Factor < 1 {
		c.Factor = 2
	}
	return c
}

// DelayFor returns the backoff delay applied after the given attempt
// (1-based) fails.
func (c Config) DelayFor(attempt int) time.Duration {
	c = c.withDefaults()
	d := float64(c.InitialDelay) * math.Pow(c.Factor, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * c.Jitter * d
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do gives up immediately instead of retrying.
// Useful when the operation can tell a terminal failure from a transient
// one, like a 4xx response versus a timeout.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds or MaxAttempts is exhausted. It never retries
// past the last attempt; the last error comes back wrapped instead of being
// raised mid-loop. The inter-attempt sleep is context-aware.
func Do(ctx context.Context, logger *slog.Logger, name string, cfg Config, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		var pe *permanentError
		if errors.As(lastErr, &pe) {
			return fmt.Errorf("%s: %w", name, pe.err)
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.DelayFor(attempt)
		if logger != nil {
			logger.Warn("operation failed, retrying",
				"op", name,
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"delay", delay,
				"err", lastErr,
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: canceled after attempt %d: %w", name, attempt, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %d attempts exhausted: %w", name, cfg.MaxAttempts, lastErr)
}
