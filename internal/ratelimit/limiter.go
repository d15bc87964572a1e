// Package ratelimit implements the global sliding-window rate limiter and
// its per-IP children. It deliberately isn't a pure token-bucket limiter:
// callers need explicit per-minute/per-hour sliding windows plus a minimum
// inter-call interval and a parsed-retry-after wait, none of which a bare
// token bucket expresses. golang.org/x/time/rate is still used as a cheap
// burst-smoothing gate in front of each per-IP child (perip.go).
package ratelimit

import (
	"container/list"
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the global call caps. MaxQueue is accepted for
// forward-compatibility but currently unused.
type Config struct {
	MaxPerMinute  int
	MaxPerHour    int
	MinIntervalMS int64
	MaxQueue      int
	Enabled       bool
}

// DefaultConfig matches the provider's own documented quota.
func DefaultConfig() Config {
	return Config{
		MaxPerMinute:  60,
		MaxPerHour:    500,
		MinIntervalMS: 100,
		MaxQueue:      100,
		Enabled:       true,
	}
}

// window is a FIFO queue of call timestamps, trimmed to entries still
// inside its duration on every observation.
type window struct {
	duration time.Duration
	entries  *list.List // of time.Time, oldest at Front
}

func newWindow(d time.Duration) *window {
	return &window{duration: d, entries: list.New()}
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.duration)
	for e := w.entries.Front(); e != nil; {
		next := e.Next()
		if e.Value.(time.Time).Before(cutoff) {
			w.entries.Remove(e)
		} else {
			break // entries are inserted in order, so the rest are newer
		}
		e = next
	}
}

func (w *window) len() int { return w.entries.Len() }

func (w *window) push(now time.Time) { w.entries.PushBack(now) }

func (w *window) oldest() (time.Time, bool) {
	if f := w.entries.Front(); f != nil {
		return f.Value.(time.Time), true
	}
	return time.Time{}, false
}

// Limiter is the global rate limiter: one instance protects every call
// made against the upstream provider, regardless of caller.
type Limiter struct {
	mu           sync.Mutex
	cfg          Config
	minuteWindow *window
	hourWindow   *window
	lastCall     time.Time
	log          zerolog.Logger
}

func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:          cfg,
		minuteWindow: newWindow(time.Minute),
		hourWindow:   newWindow(time.Hour),
		log:          log.With().Str("component", "rate_limiter").Logger(),
	}
}

// ShouldThrottle reports whether the next call must wait: after cleaning
// expired entries, true if either window is at capacity or the minimum
// inter-call interval hasn't elapsed.
func (l *Limiter) ShouldThrottle() bool {
	if !l.cfg.Enabled {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shouldThrottleLocked(time.Now())
}

func (l *Limiter) shouldThrottleLocked(now time.Time) bool {
	l.minuteWindow.prune(now)
	l.hourWindow.prune(now)

	if l.minuteWindow.len() >= l.cfg.MaxPerMinute {
		return true
	}
	if l.hourWindow.len() >= l.cfg.MaxPerHour {
		return true
	}
	if !l.lastCall.IsZero() {
		elapsed := now.Sub(l.lastCall)
		if elapsed < time.Duration(l.cfg.MinIntervalMS)*time.Millisecond {
			return true
		}
	}
	return false
}

// RecordCall appends now to both windows and updates the last-call time.
func (l *Limiter) RecordCall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.minuteWindow.push(now)
	l.hourWindow.push(now)
	l.lastCall = now
}

// computeBackoff returns how long to sleep before re-checking, capped at
// 5s for a saturated minute window or 60s for a saturated hour window.
func (l *Limiter) computeBackoff(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.minuteWindow.prune(now)
	l.hourWindow.prune(now)

	if l.minuteWindow.len() >= l.cfg.MaxPerMinute {
		if oldest, ok := l.minuteWindow.oldest(); ok {
			wait := oldest.Add(time.Minute).Sub(now)
			return clampDuration(wait, 0, 5*time.Second)
		}
	}
	if l.hourWindow.len() >= l.cfg.MaxPerHour {
		if oldest, ok := l.hourWindow.oldest(); ok {
			wait := oldest.Add(time.Hour).Sub(now)
			return clampDuration(wait, 0, 60*time.Second)
		}
	}
	if !l.lastCall.IsZero() {
		minInterval := time.Duration(l.cfg.MinIntervalMS) * time.Millisecond
		wait := minInterval - now.Sub(l.lastCall)
		if wait > 0 {
			return wait
		}
	}
	return 50 * time.Millisecond
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// WaitForSlot loops while throttled, sleeping the computed backoff each
// time, returning false if timeout elapses first.
func (l *Limiter) WaitForSlot(ctx context.Context, timeout time.Duration) bool {
	if !l.cfg.Enabled {
		return true
	}
	deadline := time.Now().Add(timeout)
	for {
		now := time.Now()
		if !l.shouldThrottleLockedSafe(now) {
			return true
		}
		if now.After(deadline) {
			l.log.Warn().Dur("timeout", timeout).Msg("rate limit wait timed out")
			return false
		}
		wait := l.computeBackoff(now)
		remaining := deadline.Sub(now)
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (l *Limiter) shouldThrottleLockedSafe(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shouldThrottleLocked(now)
}

// Stats reports the current occupancy of both windows, used by the
// /cache/stats administrative endpoint.
type Stats struct {
	CallsLastMinute int
	CallsLastHour   int
	Throttled       bool
}

func (l *Limiter) CurrentStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.minuteWindow.prune(now)
	l.hourWindow.prune(now)
	return Stats{
		CallsLastMinute: l.minuteWindow.len(),
		CallsLastHour:   l.hourWindow.len(),
		Throttled:       l.shouldThrottleLocked(now),
	}
}

// ExecuteWithRetry wraps fn (a single upstream call) with retry-on-rate-
// limit and exponential-backoff-on-transient-failure semantics. classify
// tells the limiter whether an error is a rate-limit condition (and its
// retry-after) versus a generic transient failure; nil classify treats
// every error as generic-transient.
func (l *Limiter) ExecuteWithRetry(ctx context.Context, maxRetries int, classify func(err error) (retryAfter time.Duration, isRateLimited bool), fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if !l.WaitForSlot(ctx, 30*time.Second) {
			return ctx.Err()
		}
		l.RecordCall()
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var retryAfter time.Duration
		isRateLimited := false
		if classify != nil {
			retryAfter, isRateLimited = classify(err)
		}
		if attempt == maxRetries {
			break
		}
		if isRateLimited {
			wait := retryAfter + 500*time.Millisecond // small safety margin
			l.log.Warn().Dur("wait", wait).Int("attempt", attempt+1).Msg("rate limited, retrying")
			if !sleepCtx(ctx, wait) {
				return ctx.Err()
			}
			continue
		}
		backoff := time.Duration(math.Min(math.Pow(2, float64(attempt)), 10)) * time.Second
		l.log.Warn().Dur("backoff", backoff).Int("attempt", attempt+1).Err(err).Msg("transient error, retrying")
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
