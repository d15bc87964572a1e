package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kyon9x/vn-market-service/internal/cache"
	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/provider"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

type fakeProvider struct {
	listingResult provider.ListingResult
	quoteResult   provider.QuoteResult
}

func (f *fakeProvider) FetchQuote(ctx context.Context, symbol string, assetType models.AssetType) provider.QuoteResult {
	return f.quoteResult
}
func (f *fakeProvider) FetchHistory(ctx context.Context, symbol string, assetType models.AssetType, start, end string) provider.HistoryResult {
	return provider.HistoryResult{Status: provider.StatusOKEmpty}
}
func (f *fakeProvider) FetchListing(ctx context.Context, assetType models.AssetType) provider.ListingResult {
	return f.listingResult
}
func (f *fakeProvider) FetchGoldSpotByDate(ctx context.Context, date string) provider.HistoryResult {
	return provider.HistoryResult{Status: provider.StatusOKEmpty}
}

func newTestRunner(t *testing.T, p provider.Port, popular []PopularQuote) (*Runner, *cache.Instances) {
	t.Helper()
	db, err := store.Open(store.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	caches := cache.NewInstances()
	perIP := ratelimit.NewPerIP(ratelimit.DefaultConfig())
	limiter := ratelimit.New(ratelimit.DefaultConfig())
	assets := store.NewAssetRepo(db)
	return New(caches, store.NewQuoteRepo(db), perIP, p, limiter, assets, popular), caches
}

func TestRunExpirySweep_RemovesExpiredCacheEntries(t *testing.T) {
	r, caches := newTestRunner(t, &fakeProvider{}, nil)
	caches.General.Set("stale", "x", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	r.runExpirySweep(context.Background())

	_, ok := caches.General.Get("stale")
	require.False(t, ok)
}

func TestRunRefreshSweep_UpsertsListingAndCachesPopularQuote(t *testing.T) {
	p := &fakeProvider{
		listingResult: provider.ListingResult{Status: provider.StatusOK, Assets: []models.Asset{
			{Symbol: "VNM", Name: "Vinamilk", AssetType: models.AssetStock, AssetClass: "equity", AssetSubClass: "listed", Currency: "VND"},
		}},
		quoteResult: provider.QuoteResult{Status: provider.StatusOK, Quote: models.Quote{Symbol: "VNM", AssetType: models.AssetStock, Close: 80000}},
	}
	r, caches := newTestRunner(t, p, []PopularQuote{{Symbol: "VNM", AssetType: models.AssetStock}})

	r.runRefreshSweep(context.Background())

	q, ok := caches.Quotes.Get(cache.QuoteKey("VNM", models.AssetStock))
	require.True(t, ok)
	require.Equal(t, float64(80000), q.Close)
}

func TestStartStop_StopsLoopsCooperatively(t *testing.T) {
	r, _ := newTestRunner(t, &fakeProvider{}, nil)
	r.Start(context.Background())
	r.Stop()
	// no assertion beyond not hanging: Stop must return promptly
}
