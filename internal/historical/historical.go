// Package historical implements the historical read-through service: the
// per-asset-type orchestrator that turns a (symbol, asset_type, start,
// end) request into cache lookup, gap planning, rate-limited fetch,
// persistence, and a merged result.
package historical

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// completenessThreshold is the cached/expected ratio above which cached
// records are served immediately instead of blocking on a live fetch.
const completenessThreshold = 0.8

// LazyFetchTrigger decouples the service from the lazy fetch manager's
// implementation; it need only know how to enqueue a background task.
type LazyFetchTrigger interface {
	Trigger(symbol string, assetType models.AssetType, start, end string)
}

// FullHistoryFetcher is an optional provider capability: a single call
// that returns an asset's entire history (funds expose this; stocks and
// indices typically don't). Checked via a type assertion against the
// configured provider.Port.
type FullHistoryFetcher interface {
	FetchFullHistory(ctx context.Context, symbol string, assetType models.AssetType) provider.HistoryResult
}

// Observer is the capability the freshness coordinator offers back to
// this service: told the latest date served for a symbol, whether that
// data came from cache or a live fetch. A narrow interface rather than
// a direct dependency on the quote package, since the coordinator is
// itself constructed from this service as its TopUpFetcher and can only
// be wired in after the fact via SetObserver.
type Observer interface {
	Observe(symbol string, assetType models.AssetType, latestDate string)
}

// Service is the historical read-through orchestrator.
type Service struct {
	store     *store.HistoricalRepo
	provider  provider.Port
	limiter   *ratelimit.Limiter
	lazyFetch LazyFetchTrigger
	observer  Observer
	log       zerolog.Logger

	// lazyModeEnabled reports whether an asset type uses lazy-fetch mode
	// (read-cached-then-backfill-async) instead of incremental mode
	// (block on gap-fill before responding). Gold defaults to lazy; every
	// other type defaults to incremental unless explicitly opted in.
	lazyModeEnabled map[models.AssetType]bool
}

func New(repo *store.HistoricalRepo, p provider.Port, limiter *ratelimit.Limiter, lazyFetch LazyFetchTrigger) *Service {
	return &Service{
		store:     repo,
		provider:  p,
		limiter:   limiter,
		lazyFetch: lazyFetch,
		log:       log.With().Str("component", "historical").Logger(),
		lazyModeEnabled: map[models.AssetType]bool{
			models.AssetGold: true,
		},
	}
}

// EnableLazyMode opts an asset type into lazy-fetch mode.
func (s *Service) EnableLazyMode(t models.AssetType) {
	s.lazyModeEnabled[t] = true
}

// SetObserver wires the freshness coordinator in after construction: the
// coordinator itself is built from this service as its TopUpFetcher, so
// it can't be passed to New.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Fetch returns the historical records for [start, end], normalized into
// canonical units, using lazy-fetch mode or incremental mode depending on
// asset type configuration.
func (s *Service) Fetch(ctx context.Context, symbol string, assetType models.AssetType, start, end string) ([]models.HistoricalRecord, error) {
	storageSymbol, unit, isGold := models.ParseGoldSymbol(symbol)
	lookupSymbol := symbol
	if isGold {
		lookupSymbol = storageSymbol
	}

	var recs []models.HistoricalRecord
	var err error
	if s.lazyModeEnabled[assetType] {
		recs, err = s.fetchLazy(ctx, lookupSymbol, assetType, start, end)
	} else {
		recs, err = s.fetchIncremental(ctx, lookupSymbol, assetType, start, end)
	}
	if err != nil {
		return nil, err
	}

	if isGold {
		for i := range recs {
			recs[i] = recs[i].NormalizeGoldUnit(unit)
		}
	}

	if s.observer != nil && len(recs) > 0 {
		s.observer.Observe(symbol, assetType, recs[len(recs)-1].Date)
	}
	return recs, nil
}

func (s *Service) fetchLazy(ctx context.Context, symbol string, assetType models.AssetType, start, end string) ([]models.HistoricalRecord, error) {
	startT, errS := calendar.ParseDate(start)
	endT, errE := calendar.ParseDate(end)
	if errS != nil || errE != nil {
		return nil, fmt.Errorf("historical: invalid date range %q..%q", start, end)
	}

	cached, err := s.store.CachedRecordsInRange(ctx, symbol, assetType, start, end)
	if err != nil {
		s.enqueueLazyFetch(symbol, assetType, start, end)
		return nil, fmt.Errorf("historical: read cached records: %w", err)
	}

	expected := calendar.ExpectedTradingDays(startT, endT, assetType == models.AssetGold)
	completeness := 1.0
	if expected > 0 {
		completeness = float64(len(cached)) / float64(expected)
	}

	if completeness >= completenessThreshold {
		if completeness < 1.0 {
			s.enqueueLazyFetch(symbol, assetType, start, end)
		}
		return cached, nil
	}

	fetcher, ok := s.provider.(FullHistoryFetcher)
	if ok {
		res := fetcher.FetchFullHistory(ctx, symbol, assetType)
		if res.Status == provider.StatusOK {
			if err := s.store.StoreBatch(ctx, res.Records); err == nil {
				subset := make([]models.HistoricalRecord, 0, len(res.Records))
				for _, r := range res.Records {
					if r.Date >= start && r.Date <= end {
						subset = append(subset, r)
					}
				}
				sort.Slice(subset, func(i, j int) bool { return subset[i].Date < subset[j].Date })
				return subset, nil
			}
		}
	}

	s.enqueueLazyFetch(symbol, assetType, start, end)
	return cached, nil
}

func (s *Service) enqueueLazyFetch(symbol string, assetType models.AssetType, start, end string) {
	if s.lazyFetch == nil {
		return
	}
	s.lazyFetch.Trigger(symbol, assetType, start, end)
}

func (s *Service) fetchIncremental(ctx context.Context, symbol string, assetType models.AssetType, start, end string) ([]models.HistoricalRecord, error) {
	startT, errS := calendar.ParseDate(start)
	endT, errE := calendar.ParseDate(end)
	if errS != nil || errE != nil {
		return nil, fmt.Errorf("historical: invalid date range %q..%q", start, end)
	}

	cachedDates, err := s.store.CachedDatesInRange(ctx, symbol, assetType, start, end)
	if err != nil {
		return nil, fmt.Errorf("historical: read cached dates: %w", err)
	}

	gaps := planner.Plan(startT, endT, cachedDates)
	if len(gaps) == 0 {
		return s.store.CachedRecordsInRange(ctx, symbol, assetType, start, end)
	}

	pol := policy.ForAssetType(assetType)
	requestedDays := len(calendar.EnumerateDates(startT, endT))
	fetchFull := planner.ShouldFetchFullRange(gaps, requestedDays)

	fetchOne := func(rangeStart, rangeEnd string) {
		if err := s.fetchAndStoreRange(ctx, symbol, assetType, rangeStart, rangeEnd); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Str("range_start", rangeStart).Str("range_end", rangeEnd).
				Msg("incremental fetch failed, leaving gap for the next request")
		}
		for _, d := range calendar.EnumerateDates(mustParse(rangeStart), mustParse(rangeEnd)) {
			if _, ok := cachedDates[d]; !ok {
				if err := pol.MarkFetched(ctx, s.store, symbol, assetType, d); err != nil {
					s.log.Warn().Err(err).Str("symbol", symbol).Str("date", d).Msg("mark-fetched failed")
				}
			}
		}
	}

	if fetchFull {
		fetchOne(start, end)
	} else {
		for _, g := range gaps {
			fetchOne(g.Start, g.End)
		}
	}

	return s.store.CachedRecordsInRange(ctx, symbol, assetType, start, end)
}

func mustParse(s string) time.Time {
	t, _ := calendar.ParseDate(s)
	return t
}

type rateLimitedErr struct {
	retryAfter time.Duration
}

func (e *rateLimitedErr) Error() string { return "historical: provider rate limited" }

func (s *Service) fetchAndStoreRange(ctx context.Context, symbol string, assetType models.AssetType, start, end string) error {
	var records []models.HistoricalRecord
	fn := func() error {
		res := s.provider.FetchHistory(ctx, symbol, assetType, start, end)
		switch res.Status {
		case provider.StatusOK, provider.StatusOKEmpty:
			records = res.Records
			return nil
		case provider.StatusRateLimited:
			return &rateLimitedErr{retryAfter: res.RetryAfter}
		default:
			if res.Err != nil {
				return res.Err
			}
			return fmt.Errorf("historical: provider returned status %d for %s", res.Status, symbol)
		}
	}
	classify := func(err error) (time.Duration, bool) {
		var rle *rateLimitedErr
		if errors.As(err, &rle) {
			return rle.retryAfter, true
		}
		return 0, false
	}
	if err := s.limiter.ExecuteWithRetry(ctx, 3, classify, fn); err != nil {
		return err
	}
	return s.normalizeAndStore(ctx, symbol, assetType, records)
}

// normalizeAndStore applies the canonical unit conversion (stocks arrive
// in thousands of VND from the provider and are scaled up by 1000) before
// persisting.
func (s *Service) normalizeAndStore(ctx context.Context, symbol string, assetType models.AssetType, records []models.HistoricalRecord) error {
	if assetType == models.AssetStock {
		for i := range records {
			records[i].Open *= 1000
			records[i].High *= 1000
			records[i].Low *= 1000
			records[i].Close *= 1000
			records[i].AdjClose *= 1000
		}
	}
	return s.store.StoreBatch(ctx, records)
}
