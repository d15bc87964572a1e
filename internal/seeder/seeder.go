// Package seeder implements the data seeder: parallel startup population
// of the asset catalog, plus a separate one-shot bulk gold history seeder.
package seeder

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kyon9x/vn-market-service/internal/calendar"
	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/provider"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

// skipSeedThreshold is the row count above which a category is assumed
// already seeded and skipped.
const skipSeedThreshold = 100

const batchSize = 100

// curatedIndices are always inserted regardless of what the provider's
// listing call returns, since the index family is small and fixed.
var curatedIndices = []models.Asset{
	{Symbol: "VNINDEX", Name: "VN-Index", AssetType: models.AssetIndex, AssetClass: "index", AssetSubClass: "market_index", Currency: models.DefaultCurrency},
	{Symbol: "VN30", Name: "VN30", AssetType: models.AssetIndex, AssetClass: "index", AssetSubClass: "market_index", Currency: models.DefaultCurrency},
	{Symbol: "HNX", Name: "HNX-Index", AssetType: models.AssetIndex, AssetClass: "index", AssetSubClass: "market_index", Currency: models.DefaultCurrency},
	{Symbol: "HNX30", Name: "HNX30", AssetType: models.AssetIndex, AssetClass: "index", AssetSubClass: "market_index", Currency: models.DefaultCurrency},
	{Symbol: "UPCOM", Name: "UPCoM-Index", AssetType: models.AssetIndex, AssetClass: "index", AssetSubClass: "market_index", Currency: models.DefaultCurrency},
}

// Seeder populates the asset catalog from provider listings.
type Seeder struct {
	assets   *store.AssetRepo
	provider provider.Port
	limiter  *ratelimit.Limiter
	log      zerolog.Logger
}

func New(assets *store.AssetRepo, p provider.Port, limiter *ratelimit.Limiter) *Seeder {
	return &Seeder{assets: assets, provider: p, limiter: limiter, log: log.With().Str("component", "seeder").Logger()}
}

// CategoryResult reports one category's seeding outcome.
type CategoryResult struct {
	AssetType models.AssetType
	Inserted  int
	Err       error
}

// SeedAll populates all four categories in parallel, skipping any category
// whose catalog already holds more than skipSeedThreshold rows. One
// category's failure never blocks another's.
func (s *Seeder) SeedAll(ctx context.Context) []CategoryResult {
	types := []models.AssetType{models.AssetStock, models.AssetFund, models.AssetIndex, models.AssetGold}

	results := make([]CategoryResult, len(types))
	var wg sync.WaitGroup
	for i, t := range types {
		wg.Add(1)
		go func(i int, t models.AssetType) {
			defer wg.Done()
			results[i] = s.seedCategory(ctx, t)
		}(i, t)
	}
	wg.Wait()

	if err := s.assets.UpsertBatch(ctx, curatedIndices); err != nil {
		s.log.Warn().Err(err).Msg("curated index insert failed")
	}
	return results
}

func (s *Seeder) seedCategory(ctx context.Context, assetType models.AssetType) CategoryResult {
	count, err := s.assets.CountByType(ctx, assetType)
	if err != nil {
		return CategoryResult{AssetType: assetType, Err: err}
	}
	if count > skipSeedThreshold {
		s.log.Info().Str("asset_type", string(assetType)).Int("existing_rows", count).Msg("category already seeded, skipping")
		return CategoryResult{AssetType: assetType, Inserted: 0}
	}

	if !s.limiter.WaitForSlot(ctx, 60*time.Second) {
		return CategoryResult{AssetType: assetType, Err: ctx.Err()}
	}
	s.limiter.RecordCall()
	res := s.provider.FetchListing(ctx, assetType)
	if res.Status != provider.StatusOK {
		s.log.Warn().Str("asset_type", string(assetType)).Int("status", int(res.Status)).Msg("listing fetch failed")
		return CategoryResult{AssetType: assetType, Err: res.Err}
	}

	inserted := 0
	for start := 0; start < len(res.Assets); start += batchSize {
		end := start + batchSize
		if end > len(res.Assets) {
			end = len(res.Assets)
		}
		if err := s.assets.UpsertBatch(ctx, res.Assets[start:end]); err != nil {
			s.log.Warn().Err(err).Str("asset_type", string(assetType)).Msg("batch upsert failed")
			return CategoryResult{AssetType: assetType, Inserted: inserted, Err: err}
		}
		inserted += end - start
	}
	s.log.Info().Str("asset_type", string(assetType)).Int("inserted", inserted).Msg("category seeded")
	return CategoryResult{AssetType: assetType, Inserted: inserted}
}

// GoldSeeder walks weekday-by-weekday from a configured start date to
// today, fetching the gold spot for each date. It is bulk, off-path
// infrastructure invoked on demand, not at every startup.
type GoldSeeder struct {
	hist     *store.HistoricalRepo
	provider provider.Port
	limiter  *ratelimit.Limiter
	log      zerolog.Logger
	now      func() time.Time
}

func NewGoldSeeder(hist *store.HistoricalRepo, p provider.Port, limiter *ratelimit.Limiter) *GoldSeeder {
	return &GoldSeeder{hist: hist, provider: p, limiter: limiter, log: log.With().Str("component", "gold_seeder").Logger(), now: time.Now}
}

// Run fetches every weekday from the later of startDate or the max stored
// date (exclusive) through today, skipping Saturdays and Sundays, and
// resumes automatically on restart.
func (g *GoldSeeder) Run(ctx context.Context, symbol string, startDate string) (int, error) {
	resumeFrom, err := g.hist.MaxStoredDate(ctx, symbol, models.AssetGold)
	if err != nil {
		return 0, err
	}
	cursor, err := calendar.ParseDate(startDate)
	if err != nil {
		return 0, err
	}
	if resumeFrom != "" {
		resumeT, err := calendar.ParseDate(resumeFrom)
		if err == nil && resumeT.After(cursor) {
			cursor = resumeT.AddDate(0, 0, 1)
		}
	}

	today := g.now()
	fetched := 0
	rateLimitHits := 0
	for !cursor.After(today) {
		select {
		case <-ctx.Done():
			return fetched, ctx.Err()
		default:
		}

		if !calendar.IsWeekday(cursor) {
			cursor = cursor.AddDate(0, 0, 1)
			continue
		}
		date := calendar.FormatDate(cursor)
		if g.fetchOneDate(ctx, symbol, date) {
			fetched++
			rateLimitHits = 0
		} else {
			rateLimitHits++
		}
		time.Sleep(goldSeedDelay(rateLimitHits))
		cursor = cursor.AddDate(0, 0, 1)
	}

	if err := g.hist.RecordRangeFetched(ctx, symbol, models.AssetGold, startDate, calendar.FormatDate(today)); err != nil {
		g.log.Warn().Err(err).Msg("record range fetched failed")
	}
	return fetched, nil
}

func (g *GoldSeeder) fetchOneDate(ctx context.Context, symbol, date string) bool {
	if !g.limiter.WaitForSlot(ctx, 60*time.Second) {
		return false
	}
	g.limiter.RecordCall()
	res := g.provider.FetchGoldSpotByDate(ctx, date)
	if res.Status != provider.StatusOK || len(res.Records) == 0 {
		return false
	}
	if err := g.hist.StoreBatch(ctx, res.Records); err != nil {
		g.log.Warn().Err(err).Str("date", date).Msg("store gold spot failed")
		return false
	}
	return true
}

func goldSeedDelay(rateLimitHits int) time.Duration {
	base := time.Second
	if rateLimitHits == 0 {
		return base
	}
	extended := base + time.Duration(rateLimitHits)*time.Second
	if extended > 10*time.Second {
		return 10 * time.Second
	}
	return extended
}
