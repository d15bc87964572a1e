package provider

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Breaker wraps a gobreaker.CircuitBreaker around a single concrete
// provider client so a wedged upstream trips quickly instead of burning
// the whole rate-limit/retry budget on every caller. It sits alongside the
// rate limiter and retry policy, not in place of them.
type Breaker struct {
	cb *cb.CircuitBreaker
}

// NewBreaker creates a breaker that trips after 3 consecutive failures,
// or after a 5% failure rate once at least 20 requests have been observed
// in the rolling window — the same thresholds the reference provider
// registry uses for its venues.
func NewBreaker(name string) *Breaker {
	settings := cb.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts cb.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return &Breaker{cb: cb.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. When the breaker is open, fn is
// not called and gobreaker.ErrOpenState is returned.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State exposes the current circuit state for health/cache-stats reporting.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
