// Package maintenance runs the periodic background sweeps: cache/quote
// expiry and catalog/quote refresh, both cooperatively cancellable at
// shutdown.
package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kyon9x/vn-market-service/internal/cache"
	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/provider"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

const (
	expirySweepInterval  = 30 * time.Minute
	refreshSweepInterval = time.Hour
	perIPSweepInterval   = 5 * time.Minute
)

// PopularQuote names a (symbol, asset_type) pair kept warm by the hourly
// refresh sweep.
type PopularQuote struct {
	Symbol    string
	AssetType models.AssetType
}

// Runner owns the three maintenance loops (expiry, refresh, per-IP
// cleanup) and a cooperative shutdown flag.
type Runner struct {
	caches      *cache.Instances
	quotes      *store.QuoteRepo
	perIP       *ratelimit.PerIPLimiter
	provider    provider.Port
	limiter     *ratelimit.Limiter
	assets      *store.AssetRepo
	popular     []PopularQuote
	listingType []models.AssetType
	log         zerolog.Logger

	cancel context.CancelFunc
}

func New(caches *cache.Instances, quotes *store.QuoteRepo, perIP *ratelimit.PerIPLimiter, p provider.Port, limiter *ratelimit.Limiter, assets *store.AssetRepo, popular []PopularQuote) *Runner {
	return &Runner{
		caches:      caches,
		quotes:      quotes,
		perIP:       perIP,
		provider:    p,
		limiter:     limiter,
		assets:      assets,
		popular:     popular,
		listingType: []models.AssetType{models.AssetStock, models.AssetFund, models.AssetIndex, models.AssetGold},
		log:         log.With().Str("component", "maintenance").Logger(),
	}
}

// Start launches the sweep loops in background goroutines. Call Stop to
// signal cooperative cancellation.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.loop(ctx, expirySweepInterval, r.runExpirySweep)
	go r.loop(ctx, refreshSweepInterval, r.runRefreshSweep)
	go r.loop(ctx, perIPSweepInterval, r.runPerIPSweep)
}

// Stop signals all three loops to exit at their next tick boundary.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, task func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

func (r *Runner) runExpirySweep(ctx context.Context) {
	removed := r.caches.CleanupExpired()
	expiredQuotes, err := r.quotes.DeleteExpired(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("persistent quote expiry sweep failed")
	}
	r.log.Info().Int("cache_entries_removed", removed).Int("expired_quotes_removed", expiredQuotes).Msg("expiry sweep complete")
}

func (r *Runner) runPerIPSweep(ctx context.Context) {
	idleIPs := r.perIP.Cleanup()
	r.log.Info().Int("idle_ips_removed", idleIPs).Msg("per-IP cleanup complete")
}

func (r *Runner) runRefreshSweep(ctx context.Context) {
	for _, t := range r.listingType {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.refreshListing(ctx, t)
	}
	for _, pq := range r.popular {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.refreshQuote(ctx, pq)
	}
	r.log.Info().Int("listings_refreshed", len(r.listingType)).Int("popular_quotes_refreshed", len(r.popular)).Msg("refresh sweep complete")
}

func (r *Runner) refreshListing(ctx context.Context, assetType models.AssetType) {
	if !r.limiter.WaitForSlot(ctx, 30*time.Second) {
		return
	}
	r.limiter.RecordCall()
	res := r.provider.FetchListing(ctx, assetType)
	if res.Status != provider.StatusOK {
		r.log.Warn().Str("asset_type", string(assetType)).Int("status", int(res.Status)).Msg("listing refresh failed")
		return
	}
	if err := r.assets.UpsertBatch(ctx, res.Assets); err != nil {
		r.log.Warn().Err(err).Str("asset_type", string(assetType)).Msg("listing catalog upsert failed")
	}
}

func (r *Runner) refreshQuote(ctx context.Context, pq PopularQuote) {
	if !r.limiter.WaitForSlot(ctx, 30*time.Second) {
		return
	}
	r.limiter.RecordCall()
	res := r.provider.FetchQuote(ctx, pq.Symbol, pq.AssetType)
	if res.Status != provider.StatusOK {
		r.log.Warn().Str("symbol", pq.Symbol).Int("status", int(res.Status)).Msg("popular quote refresh failed")
		return
	}
	key := cache.QuoteKey(pq.Symbol, pq.AssetType)
	r.caches.Quotes.Set(key, res.Quote, cache.QuoteTTL(pq.AssetType))
}
