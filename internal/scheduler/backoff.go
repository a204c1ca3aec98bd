package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	backoffInitial = 30 * time.Second
	backoffMax     = 30 * time.Minute
)

// newBackoff builds the per-account failure backoff: exponential,
// capped at backoffMax, never giving up. Reset on the first success.
func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffInitial
	b.MaxInterval = backoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// nextDelay is NextBackOff with the Stop sentinel mapped to the cap.
func nextDelay(b *backoff.ExponentialBackOff) time.Duration {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return backoffMax
	}
	return d
}
