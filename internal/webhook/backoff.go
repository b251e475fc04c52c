package webhook

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffConfig is the shape from §4.6, already parsed out of Config.
type BackoffConfig struct {
	BaseMs int64
	Factor float64
	MaxMs  int64
	Jitter bool
}

// Delay computes the wait before attempt number attempts (1-indexed: the
// delay preceding the first retry after a failed first attempt is
// Delay(cfg, 1)). It builds a fresh, deterministic
// cenkalti/backoff/v5.ExponentialBackOff curve — randomization disabled,
// since the spec's own uniform jitter is layered on top as an explicit
// step below rather than left to the library — and steps it forward
// exactly attempts times, taking the last interval.
func Delay(cfg BackoffConfig, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(cfg.BaseMs) * time.Millisecond
	eb.Multiplier = cfg.Factor
	eb.MaxInterval = time.Duration(cfg.MaxMs) * time.Millisecond
	eb.RandomizationFactor = 0

	var d time.Duration
	for i := 0; i < attempts; i++ {
		d = eb.NextBackOff()
	}
	if max := time.Duration(cfg.MaxMs) * time.Millisecond; d > max {
		d = max
	}

	if cfg.Jitter && d > 0 {
		d = time.Duration(rand.Int63n(int64(d) + 1))
	}
	return d
}
