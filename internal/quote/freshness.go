package quote

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kyon9x/vn-market-service/internal/calendar"
	"github.com/Kyon9x/vn-market-service/internal/models"
)

// staleWeekdayAge is how old a weekday's latest record can get before the
// freshness coordinator spawns a today-only top-up fetch.
const staleWeekdayAge = 30 * time.Minute

// TopUpFetcher is the capability the freshness coordinator needs from the
// historical read-through service: fetch and persist one date range,
// discarding the result (the coordinator only cares about the side effect).
type TopUpFetcher interface {
	Fetch(ctx context.Context, symbol string, assetType models.AssetType, start, end string) ([]models.HistoricalRecord, error)
}

// FreshnessCoordinator inspects a just-served historical dataset's latest
// date against the current clock and spawns a background top-up fetch
// when the data looks stale. It never delays the response that triggered
// it — every check runs in its own goroutine.
type FreshnessCoordinator struct {
	fetcher TopUpFetcher
	log     zerolog.Logger
	now     func() time.Time
}

func NewFreshnessCoordinator(fetcher TopUpFetcher) *FreshnessCoordinator {
	return &FreshnessCoordinator{
		fetcher: fetcher,
		log:     log.With().Str("component", "freshness_coordinator").Logger(),
		now:     time.Now,
	}
}

// Observe checks latestDate for symbol/assetType and, if stale by the
// weekday/weekend rules, kicks off an async top-up. Safe to call on every
// historical or quote response; it returns immediately.
func (f *FreshnessCoordinator) Observe(symbol string, assetType models.AssetType, latestDate string) {
	go f.observe(symbol, assetType, latestDate)
}

func (f *FreshnessCoordinator) observe(symbol string, assetType models.AssetType, latestDate string) {
	latest, err := calendar.ParseDate(latestDate)
	if err != nil {
		return
	}
	now := f.now()

	if calendar.IsWeekday(now) {
		if now.Sub(latest) <= staleWeekdayAge {
			return
		}
		today := calendar.FormatDate(now)
		f.topUp(symbol, assetType, today, today)
		return
	}

	// weekend: top up to the most recent Friday unless we're already there
	if calendar.IsFriday(latest) {
		return
	}
	friday := calendar.LatestFriday(now)
	fridayStr := calendar.FormatDate(friday)
	f.topUp(symbol, assetType, fridayStr, fridayStr)
}

func (f *FreshnessCoordinator) topUp(symbol string, assetType models.AssetType, start, end string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := f.fetcher.Fetch(ctx, symbol, assetType, start, end); err != nil {
		f.log.Warn().Err(err).Str("symbol", symbol).Msg("freshness top-up fetch failed")
	}
}
