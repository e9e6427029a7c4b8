// Package backoff wraps cenkalti/backoff with the deterministic growth the
// sync retry loops rely on: min(base * 2^n, max), no jitter.
package backoff

import (
	"time"

	expbackoff "github.com/cenkalti/backoff/v4"
)

// Backoff produces a capped exponential delay sequence. It never sleeps
// itself; callers sleep on the returned duration so cancellation stays in
// their hands. Not safe for concurrent use; each retry loop owns its own
// instance.
type Backoff struct {
	eb *expbackoff.ExponentialBackOff
}

// New returns a backoff starting at base and doubling up to max.
func New(base, max time.Duration) *Backoff {
	eb := expbackoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.MaxInterval = max
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // the retry loops bound attempts, not elapsed time
	eb.Reset()
	return &Backoff{eb: eb}
}

// Next returns the delay for the current attempt and advances the cursor.
func (b *Backoff) Next() time.Duration {
	return b.eb.NextBackOff()
}

// Reset rewinds the cursor to the first attempt.
func (b *Backoff) Reset() {
	b.eb.Reset()
}
