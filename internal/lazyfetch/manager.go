// Package lazyfetch implements the lazy fetch manager: a background
// worker per (symbol, start, end) task that backfills missing historical
// ranges in small chunks, without blocking the caller that triggered it.
package lazyfetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kyon9x/vn-market-service/internal/calendar"
	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/planner"
	"github.com/Kyon9x/vn-market-service/internal/policy"
	"github.com/Kyon9x/vn-market-service/internal/provider"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

const (
	goldChunkDays = 3
	fundChunkDays = 14
	stockChunkDays = 14

	backgroundFloor = 2 * time.Second
	rateLimitCap    = 10 * time.Second
)

// ActivityTracker reports how many calls the rate limiter has recorded in
// the last minute, feeding the adaptive inter-chunk delay.
type ActivityTracker interface {
	CallsLastMinute() int
}

// limiterActivity adapts ratelimit.Limiter's Stats to ActivityTracker.
type limiterActivity struct {
	limiter *ratelimit.Limiter
}

func (l limiterActivity) CallsLastMinute() int {
	return l.limiter.CurrentStats().CallsLastMinute
}

// Manager dedups and schedules background lazy-fetch workers.
type Manager struct {
	mu       sync.Mutex
	active   map[string]struct{}
	store    *store.HistoricalRepo
	provider provider.Port
	limiter  *ratelimit.Limiter
	activity ActivityTracker
	log      zerolog.Logger
	stopped  bool
}

func New(repo *store.HistoricalRepo, p provider.Port, limiter *ratelimit.Limiter) *Manager {
	return &Manager{
		active:   make(map[string]struct{}),
		store:    repo,
		provider: p,
		limiter:  limiter,
		activity: limiterActivity{limiter: limiter},
		log:      log.With().Str("component", "lazy_fetch_manager").Logger(),
	}
}

func taskKey(symbol string, assetType models.AssetType, start, end string) string {
	return fmt.Sprintf("%s:%s:%s:%s", assetType, symbol, start, end)
}

// Trigger enqueues a background backfill for (symbol, start, end) unless a
// task with the same key is already active, in which case it's dropped.
func (m *Manager) Trigger(symbol string, assetType models.AssetType, start, end string) {
	key := taskKey(symbol, assetType, start, end)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if _, exists := m.active[key]; exists {
		m.mu.Unlock()
		return
	}
	m.active[key] = struct{}{}
	m.mu.Unlock()

	go m.run(key, symbol, assetType, start, end)
}

// Stop prevents new tasks from being scheduled; in-flight tasks still run
// to completion, per the no-external-cancellation contract.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *Manager) finish(key string) {
	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()
}

func (m *Manager) run(key, symbol string, assetType models.AssetType, start, end string) {
	defer m.finish(key)
	ctx := context.Background()

	startT, errS := calendar.ParseDate(start)
	endT, errE := calendar.ParseDate(end)
	if errS != nil || errE != nil {
		m.log.Warn().Str("start", start).Str("end", end).Msg("lazy fetch: invalid date range, dropping task")
		return
	}

	cachedDates, err := m.store.CachedDatesInRange(ctx, symbol, assetType, start, end)
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", symbol).Msg("lazy fetch: failed to recompute gaps")
		return
	}
	gaps := planner.Plan(startT, endT, cachedDates)
	if len(gaps) == 0 {
		return
	}

	chunks := chunkGaps(gaps, chunkSizeFor(assetType))
	pol := policy.ForAssetType(assetType)
	rateLimitHits := 0

	for i, c := range chunks {
		m.fetchChunk(ctx, symbol, assetType, c.Start, c.End, pol, &rateLimitHits)
		if i < len(chunks)-1 {
			time.Sleep(m.adaptiveDelay(rateLimitHits))
		}
	}
}

func chunkSizeFor(assetType models.AssetType) int {
	switch assetType {
	case models.AssetGold:
		return goldChunkDays
	case models.AssetFund:
		return fundChunkDays
	default:
		return stockChunkDays
	}
}

// chunkGaps splits each gap into contiguous sub-ranges no longer than
// maxDays.
func chunkGaps(gaps []planner.Gap, maxDays int) []planner.Gap {
	out := make([]planner.Gap, 0, len(gaps))
	for _, g := range gaps {
		start, _ := calendar.ParseDate(g.Start)
		end, _ := calendar.ParseDate(g.End)
		for cur := start; !cur.After(end); {
			chunkEnd := cur.AddDate(0, 0, maxDays-1)
			if chunkEnd.After(end) {
				chunkEnd = end
			}
			out = append(out, planner.Gap{Start: calendar.FormatDate(cur), End: calendar.FormatDate(chunkEnd)})
			cur = chunkEnd.AddDate(0, 0, 1)
		}
	}
	return out
}

func (m *Manager) fetchChunk(ctx context.Context, symbol string, assetType models.AssetType, start, end string, pol policy.CachePolicy, rateLimitHits *int) {
	if !m.limiter.WaitForSlot(ctx, 60*time.Second) {
		return
	}
	m.limiter.RecordCall()
	res := m.provider.FetchHistory(ctx, symbol, assetType, start, end)

	switch res.Status {
	case provider.StatusOK, provider.StatusOKEmpty:
		if len(res.Records) > 0 {
			if err := m.store.StoreBatch(ctx, res.Records); err != nil {
				m.log.Warn().Err(err).Str("symbol", symbol).Msg("lazy fetch: store chunk failed")
			}
		}
		for _, d := range calendar.EnumerateDates(mustParse(start), mustParse(end)) {
			if err := pol.MarkFetched(ctx, m.store, symbol, assetType, d); err != nil {
				m.log.Warn().Err(err).Str("symbol", symbol).Str("date", d).Msg("lazy fetch: mark-fetched failed")
			}
		}
	case provider.StatusRateLimited:
		*rateLimitHits++
	default:
		m.log.Warn().Str("symbol", symbol).Int("status", int(res.Status)).Msg("lazy fetch: chunk failed, will retry on a future trigger")
	}
}

func mustParse(s string) time.Time {
	t, _ := calendar.ParseDate(s)
	return t
}

// adaptiveDelay picks the inter-chunk sleep based on recent provider call
// volume, tiered so the manager backs off automatically under load, with
// a background-worker floor and a rate-limit-driven cap.
func (m *Manager) adaptiveDelay(rateLimitHits int) time.Duration {
	callsLastMinute := m.activity.CallsLastMinute()

	var base time.Duration
	switch {
	case callsLastMinute > 40:
		base = 5 * time.Second
	case callsLastMinute > 25:
		base = 3 * time.Second
	case callsLastMinute > 15:
		base = 2 * time.Second
	default:
		base = 1 * time.Second
	}
	if base < backgroundFloor {
		base = backgroundFloor
	}

	if rateLimitHits > 0 {
		extended := base + time.Duration(rateLimitHits)*time.Second
		if extended > rateLimitCap {
			extended = rateLimitCap
		}
		return extended
	}
	return base
}

// ActiveCount reports how many tasks are currently in flight, surfaced by
// the cache-stats admin endpoint.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
