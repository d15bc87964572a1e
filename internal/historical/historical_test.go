package historical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/provider"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

type fakeProvider struct {
	historyResult provider.HistoryResult
	calls         int
}

func (f *fakeProvider) FetchQuote(ctx context.Context, symbol string, assetType models.AssetType) provider.QuoteResult {
	return provider.QuoteResult{Status: provider.StatusPermanentError}
}

func (f *fakeProvider) FetchHistory(ctx context.Context, symbol string, assetType models.AssetType, start, end string) provider.HistoryResult {
	f.calls++
	return f.historyResult
}

func (f *fakeProvider) FetchListing(ctx context.Context, assetType models.AssetType) provider.ListingResult {
	return provider.ListingResult{Status: provider.StatusPermanentError}
}

func (f *fakeProvider) FetchGoldSpotByDate(ctx context.Context, date string) provider.HistoryResult {
	return provider.HistoryResult{Status: provider.StatusPermanentError}
}

type fakeTrigger struct {
	triggered []string
}

func (f *fakeTrigger) Trigger(symbol string, assetType models.AssetType, start, end string) {
	f.triggered = append(f.triggered, symbol+":"+start+":"+end)
}

func newTestRepo(t *testing.T) *store.HistoricalRepo {
	t.Helper()
	db, err := store.Open(store.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewHistoricalRepo(db)
}

func TestFetchIncremental_FetchesGapsAndMergesWithCache(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-02", Close: 81,
	}))

	fp := &fakeProvider{historyResult: provider.HistoryResult{
		Status: provider.StatusOK,
		Records: []models.HistoricalRecord{
			{Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-01", Close: 80},
		},
	}}
	trigger := &fakeTrigger{}
	svc := New(repo, fp, ratelimit.New(ratelimit.DefaultConfig()), trigger)

	recs, err := svc.Fetch(ctx, "VNM", models.AssetStock, "2025-10-01", "2025-10-02")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, 1, fp.calls)
	// stock prices scale x1000 on normalization
	require.Equal(t, float64(80000), recs[0].Close)
}

func TestFetchIncremental_NoGapsSkipsProviderCall(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-01", Close: 80000,
	}))

	fp := &fakeProvider{}
	svc := New(repo, fp, ratelimit.New(ratelimit.DefaultConfig()), &fakeTrigger{})

	recs, err := svc.Fetch(ctx, "VNM", models.AssetStock, "2025-10-01", "2025-10-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 0, fp.calls)
}

func TestFetchLazy_HighCompletenessSkipsFetchButTopsUp(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	// seed 4 of the 5 days in the window for GOLD (all-days expected): 80% coverage
	for _, d := range []string{"2025-10-01", "2025-10-02", "2025-10-03", "2025-10-04"} {
		require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
			Symbol: "VN.GOLD", AssetType: models.AssetGold, Date: d, Close: 75000000,
		}))
	}

	fp := &fakeProvider{}
	trigger := &fakeTrigger{}
	svc := New(repo, fp, ratelimit.New(ratelimit.DefaultConfig()), trigger)

	recs, err := svc.Fetch(ctx, "VN.GOLD", models.AssetGold, "2025-10-01", "2025-10-05")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	require.Equal(t, 0, fp.calls)
	require.Len(t, trigger.triggered, 1, "partial coverage should still enqueue a lazy top-up")
}

func TestFetchLazy_GoldChiSuffixDividesBy10(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VN.GOLD", AssetType: models.AssetGold, Date: "2025-10-01", Close: 75000000,
	}))

	svc := New(repo, &fakeProvider{}, ratelimit.New(ratelimit.DefaultConfig()), &fakeTrigger{})
	recs, err := svc.Fetch(ctx, "VN.GOLD.C", models.AssetGold, "2025-10-01", "2025-10-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, float64(7500000), recs[0].Close)
	require.Equal(t, "VN.GOLD.C", recs[0].Symbol)
}
