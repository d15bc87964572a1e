// Package quote implements the quote service: the layered lookup across
// in-memory cache, persistent quote rows, the historical store, and
// finally the live provider, plus the freshness coordinator that keeps
// cached quotes from going stale.
package quote

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kyon9x/vn-market-service/internal/apperr"
	"github.com/Kyon9x/vn-market-service/internal/cache"
	"github.com/Kyon9x/vn-market-service/internal/calendar"
	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/provider"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

// HistoricalFetcher is the slice of the historical read-through service
// the quote service needs to fall back to when a live quote is
// unavailable.
type HistoricalFetcher interface {
	Fetch(ctx context.Context, symbol string, assetType models.AssetType, start, end string) ([]models.HistoricalRecord, error)
}

const mostRecentLookback = 30 * 24 * time.Hour

// Service implements the layered quote lookup.
type Service struct {
	caches     *cache.Instances
	quoteRepo  *store.QuoteRepo
	histRepo   *store.HistoricalRepo
	provider   provider.Port
	limiter    *ratelimit.Limiter
	historical HistoricalFetcher
	freshness  *FreshnessCoordinator
	log        zerolog.Logger
	now        func() time.Time
}

func New(caches *cache.Instances, quoteRepo *store.QuoteRepo, histRepo *store.HistoricalRepo, p provider.Port, limiter *ratelimit.Limiter, historical HistoricalFetcher, freshness *FreshnessCoordinator) *Service {
	return &Service{
		caches:     caches,
		quoteRepo:  quoteRepo,
		histRepo:   histRepo,
		provider:   p,
		limiter:    limiter,
		historical: historical,
		freshness:  freshness,
		log:        log.With().Str("component", "quote_service").Logger(),
		now:        time.Now,
	}
}

// Get resolves a quote for (symbol, assetType) through every layer in
// order, returning apperr.KindNotFound if nothing at all is available.
func (s *Service) Get(ctx context.Context, symbol string, assetType models.AssetType) (models.Quote, error) {
	key := cache.QuoteKey(symbol, assetType)

	if q, ok := s.caches.Quotes.Get(key); ok {
		s.freshness.Observe(symbol, assetType, q.Date)
		return q, nil
	}

	if q, ok, err := s.quoteRepo.Get(ctx, symbol, assetType); err == nil && ok {
		s.caches.Quotes.Set(key, q, cache.QuoteTTL(assetType))
		s.freshness.Observe(symbol, assetType, q.Date)
		return q, nil
	}

	if assetType == models.AssetGold {
		if rec, err := s.histRepo.MostRecentRecord(ctx, symbol, assetType); err == nil {
			if latest, perr := calendar.ParseDate(rec.Date); perr == nil && s.now().Sub(latest) <= 24*time.Hour {
				q := models.QuoteFromRecord(models.Asset{AssetType: assetType, Currency: models.DefaultCurrency}, rec, false)
				s.cacheQuote(ctx, key, q, assetType)
				return q, nil
			}
		}
	}

	res := s.fetchLive(ctx, symbol, assetType)
	switch res.Status {
	case provider.StatusOK:
		q := res.Quote
		s.cacheQuote(ctx, key, q, assetType)
		return q, nil
	case provider.StatusOKEmpty, provider.StatusTransientError, provider.StatusRateLimited, provider.StatusPermanentError:
		return s.fallback(ctx, key, symbol, assetType)
	default:
		return s.fallback(ctx, key, symbol, assetType)
	}
}

func (s *Service) fetchLive(ctx context.Context, symbol string, assetType models.AssetType) provider.QuoteResult {
	if !s.limiter.WaitForSlot(ctx, 30*time.Second) {
		return provider.QuoteResult{Status: provider.StatusTransientError, Err: ctx.Err()}
	}
	s.limiter.RecordCall()
	return s.provider.FetchQuote(ctx, symbol, assetType)
}

func (s *Service) fallback(ctx context.Context, key, symbol string, assetType models.AssetType) (models.Quote, error) {
	if rec, err := s.histRepo.MostRecentRecord(ctx, symbol, assetType); err == nil {
		if latest, perr := calendar.ParseDate(rec.Date); perr == nil && s.now().Sub(latest) <= mostRecentLookback {
			q := models.QuoteFromRecord(models.Asset{AssetType: assetType, Currency: models.DefaultCurrency}, rec, true)
			s.cacheQuote(ctx, key, q, assetType)
			return q, nil
		}
	}

	if s.historical != nil {
		end := calendar.FormatDate(s.now())
		start := calendar.FormatDate(s.now().Add(-7 * 24 * time.Hour))
		recs, err := s.historical.Fetch(ctx, symbol, assetType, start, end)
		if err == nil && len(recs) > 0 {
			last := recs[len(recs)-1]
			q := models.QuoteFromRecord(models.Asset{AssetType: assetType, Currency: models.DefaultCurrency}, last, true)
			s.cacheQuote(ctx, key, q, assetType)
			return q, nil
		}
	}

	return models.Quote{}, apperr.NotFound("no quote available for " + symbol)
}

func (s *Service) cacheQuote(ctx context.Context, key string, q models.Quote, assetType models.AssetType) {
	ttl := cache.QuoteTTL(assetType)
	s.caches.Quotes.Set(key, q, ttl)
	if err := s.quoteRepo.Put(ctx, q, ttl); err != nil {
		s.log.Warn().Err(err).Str("symbol", q.Symbol).Msg("persist quote failed")
	}
	s.freshness.Observe(q.Symbol, assetType, q.Date)
}
