package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipEntry is one tracked client's child limiter plus bookkeeping needed
// for the idle-eviction and max-tracked-IPs sweeps.
type ipEntry struct {
	limiter      *Limiter
	burstGate    *rate.Limiter // smoothing gate in front of the sliding-window child
	lastCallTime time.Time
}

// PerIPLimiter maps client IP to an independent child Limiter with the
// same caps as the global one (configurable). Call Allow/RecordCall in
// series with the global Limiter; both must permit a call.
type PerIPLimiter struct {
	mu           sync.Mutex
	childConfig  Config
	entries      map[string]*ipEntry
	maxTracked   int
	idleTimeout  time.Duration
	burstRPS     float64
	burstCapcity int
}

func NewPerIP(childConfig Config) *PerIPLimiter {
	return &PerIPLimiter{
		childConfig:  childConfig,
		entries:      make(map[string]*ipEntry),
		maxTracked:   10000,
		idleTimeout:  time.Hour,
		burstRPS:     5,
		burstCapcity: 10,
	}
}

func (p *PerIPLimiter) getOrCreate(ip string) *ipEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[ip]
	if ok {
		return e
	}
	e = &ipEntry{
		limiter:   New(p.childConfig),
		burstGate: rate.NewLimiter(rate.Limit(p.burstRPS), p.burstCapcity),
	}
	p.entries[ip] = e
	if len(p.entries) > p.maxTracked {
		p.evictOldestLocked()
	}
	return e
}

// evictOldestLocked discards the oldest-by-last-call-time entries once the
// tracked set exceeds maxTracked. Caller holds p.mu.
func (p *PerIPLimiter) evictOldestLocked() {
	overflow := len(p.entries) - p.maxTracked
	if overflow <= 0 {
		return
	}
	type kv struct {
		ip string
		t  time.Time
	}
	oldest := make([]kv, 0, len(p.entries))
	for ip, e := range p.entries {
		oldest = append(oldest, kv{ip, e.lastCallTime})
	}
	// simple selection of the `overflow` smallest timestamps; the tracked
	// set is bounded so O(n*overflow) is fine in practice
	for i := 0; i < overflow; i++ {
		minIdx := -1
		for j, o := range oldest {
			if o.ip == "" {
				continue
			}
			if minIdx == -1 || o.t.Before(oldest[minIdx].t) {
				minIdx = j
			}
		}
		if minIdx == -1 {
			break
		}
		delete(p.entries, oldest[minIdx].ip)
		oldest[minIdx].ip = ""
	}
}

// Allow reports whether ip may make a call right now without blocking —
// the burst gate and the sliding-window throttle check both must pass.
func (p *PerIPLimiter) Allow(ip string) bool {
	e := p.getOrCreate(ip)
	if !e.burstGate.Allow() {
		return false
	}
	return !e.limiter.ShouldThrottle()
}

// RecordCall records a call for ip on its child limiter.
func (p *PerIPLimiter) RecordCall(ip string) {
	e := p.getOrCreate(ip)
	e.limiter.RecordCall()
	p.mu.Lock()
	e.lastCallTime = time.Now()
	p.mu.Unlock()
}

// Cleanup removes IPs idle for longer than the idle timeout. Intended to
// be called periodically by the background maintenance loop.
func (p *PerIPLimiter) Cleanup() (removed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-p.idleTimeout)
	for ip, e := range p.entries {
		if e.lastCallTime.Before(cutoff) {
			delete(p.entries, ip)
			removed++
		}
	}
	return removed
}

// TrackedCount returns how many IPs currently have a child limiter.
func (p *PerIPLimiter) TrackedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
