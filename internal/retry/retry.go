// Package retry computes exponential backoff delays for failed syncs.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Delay returns the wait before the next attempt after the given number of
// consecutive failures. Zero or negative failures yield base; each failure doubles
// the delay, capped at max. No jitter is applied, so delays are reproducible.
func Delay(failures int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if max < base {
		max = base
	}
	if failures < 0 {
		failures = 0
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
	}
	b.Reset()
	next := b.NextBackOff()
	for i := 0; i < failures && next < max; i++ {
		next = b.NextBackOff()
	}
	return next
}
