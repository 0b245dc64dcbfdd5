package docstore

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the optimistic-concurrency retry loop in
// DocumentBlob.Modify. The delay before attempt n is
//
//	min(2^n * DelayFactor * jitter, MaxDelay)
//
// with jitter drawn uniformly from [1-RandomizationFactor, 1+RandomizationFactor].
// The config is set per Container and inherited by every DocumentBlob it
// creates.
type RetryConfig struct {
	// Retries is the number of additional write attempts after the first.
	Retries int

	// DelayFactor is the base delay unit.
	DelayFactor time.Duration

	// RandomizationFactor is the jitter spread, in [0, 1].
	RandomizationFactor float64

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the retry policy used when none is supplied.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Retries:             10,
		DelayFactor:         100 * time.Millisecond,
		RandomizationFactor: 0.25,
		MaxDelay:            30 * time.Second,
	}
}

func (rc RetryConfig) newBackOff() *backoff.ExponentialBackOff {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     rc.DelayFactor,
		RandomizationFactor: rc.RandomizationFactor,
		Multiplier:          2,
		MaxInterval:         rc.MaxDelay,
		MaxElapsedTime:      0, // attempts are bounded by Retries, not wall time
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	bo.Reset()
	return bo
}

type options struct {
	schemaVersion int
	retry         RetryConfig
	logger        *slog.Logger
}

// Option configures a Container at construction time.
type Option func(*options)

// WithSchemaVersion sets the container's current schema version.
// The default is 1.
func WithSchemaVersion(version int) Option {
	return func(o *options) {
		o.schemaVersion = version
	}
}

// WithRetryConfig replaces the retry policy Modify uses on write conflicts.
func WithRetryConfig(rc RetryConfig) Option {
	return func(o *options) {
		o.retry = rc
	}
}

// WithLogger injects the structured logger used by the container and every
// blob handle it issues. If nil or unset, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
