package retry

import (
	"context"
	"time"
)

// Config configures exponential backoff retry behavior.
type Config struct {
	MaxRetries int           // Retries after the first attempt
	BaseDelay  time.Duration // Delay before the first retry
	MaxDelay   time.Duration // Upper bound for a single delay
	Multiplier float64       // Backoff growth factor
}

// DefaultConfig returns the backoff used for provider and enrichment calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2,
	}
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Do executes fn with exponential backoff. Only errors accepted by transient
// are retried; anything else fails fast. The returned int is the number of
// retries that were performed, whether or not the call eventually succeeded.
func Do[T any](ctx context.Context, cfg Config, transient Classifier, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	backoff := cfg.BaseDelay
	retries := 0

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, retries, nil
		}

		// The outer deadline always wins over the retry budget
		if ctx.Err() != nil {
			return zero, retries, err
		}
		if transient == nil || !transient(err) || attempt >= cfg.MaxRetries {
			return zero, retries, err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, retries, err
		case <-timer.C:
		}

		retries++
		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
			backoff = cfg.MaxDelay
		}
	}
}
