package usecase

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// requeueRandomization spreads each requeue delay by up to half of its exponential step.
const requeueRandomization = 0.5

// maxBackoffSteps bounds how far the exponential sequence is advanced; the cap is reached long before.
const maxBackoffSteps = 64

// requeueDelay computes the wait before requeueing a failed message: an exponential
// step capped at maxDelay and randomized by randomization. attempt is 1-based (1 => base).
func requeueDelay(attempt int64, base, maxDelay time.Duration, randomization float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if maxDelay <= 0 {
		maxDelay = backoff.DefaultMaxInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = maxDelay
	b.RandomizationFactor = randomization
	b.MaxElapsedTime = 0
	b.Reset()

	for range min(attempt-1, maxBackoffSteps) {
		b.NextBackOff()
	}
	return b.NextBackOff()
}
