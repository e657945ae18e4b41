// Package resilience computes the scheduler's per-retry backoff delay.
package resilience

import (
	"math"
	"math/rand"
	"time"

	"vecbatch/internal/domain"
)

// Backoff returns the delay a worker must sleep before re-enqueueing an
// item, given the configured strategy, the run's max_attempts, and the
// item's remaining_attempts before this retry is counted against it.
// None is never invoked by callers (a None-strategy item never retries).
func Backoff(strategy domain.RetryStrategy, maxAttempts, remainingAttempts int) time.Duration {
	switch strategy {
	case domain.RetryImmediate:
		return 0
	case domain.RetryFixed:
		return time.Second
	case domain.RetryExponential:
		exp := math.Pow(2, float64(maxAttempts-remainingAttempts))
		secs := math.Min(exp, 60)
		return time.Duration(secs * float64(time.Second))
	case domain.RetryJittered:
		secs := 0.5 + rand.Float64()*1.5
		return time.Duration(secs * float64(time.Second))
	default:
		return 0
	}
}
