package lazyfetch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/planner"
	"github.com/Kyon9x/vn-market-service/internal/provider"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (c *countingProvider) FetchQuote(ctx context.Context, symbol string, assetType models.AssetType) provider.QuoteResult {
	return provider.QuoteResult{Status: provider.StatusPermanentError}
}

func (c *countingProvider) FetchHistory(ctx context.Context, symbol string, assetType models.AssetType, start, end string) provider.HistoryResult {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return provider.HistoryResult{Status: provider.StatusOK, Records: []models.HistoricalRecord{
		{Symbol: symbol, AssetType: assetType, Date: start, Close: 1},
	}}
}

func (c *countingProvider) FetchListing(ctx context.Context, assetType models.AssetType) provider.ListingResult {
	return provider.ListingResult{Status: provider.StatusOKEmpty}
}

func (c *countingProvider) FetchGoldSpotByDate(ctx context.Context, date string) provider.HistoryResult {
	return provider.HistoryResult{Status: provider.StatusOKEmpty}
}

func (c *countingProvider) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestManager(t *testing.T, p provider.Port) (*Manager, *store.HistoricalRepo) {
	t.Helper()
	db, err := store.Open(store.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := store.NewHistoricalRepo(db)
	m := New(repo, p, ratelimit.New(ratelimit.DefaultConfig()))
	return m, repo
}

func TestTrigger_DropsDuplicateTaskKey(t *testing.T) {
	p := &countingProvider{}
	m, _ := newTestManager(t, p)

	m.mu.Lock()
	m.active[taskKey("VNM", models.AssetStock, "2025-10-01", "2025-10-02")] = struct{}{}
	m.mu.Unlock()

	m.Trigger("VNM", models.AssetStock, "2025-10-01", "2025-10-02")

	require.Equal(t, 1, m.ActiveCount())
}

func TestTrigger_BackfillsGapsAndClearsActiveSet(t *testing.T) {
	p := &countingProvider{}
	m, repo := newTestManager(t, p)

	m.Trigger("VNM", models.AssetStock, "2025-10-01", "2025-10-01")

	require.Eventually(t, func() bool { return m.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, p.callCount())

	recs, err := repo.CachedRecordsInRange(context.Background(), "VNM", models.AssetStock, "2025-10-01", "2025-10-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestChunkGaps_SplitsLongGapIntoFixedSizeChunks(t *testing.T) {
	gaps := []planner.Gap{{Start: "2025-10-01", End: "2025-10-10"}}

	chunks := chunkGaps(gaps, goldChunkDays)

	require.Equal(t, []planner.Gap{
		{Start: "2025-10-01", End: "2025-10-03"},
		{Start: "2025-10-04", End: "2025-10-06"},
		{Start: "2025-10-07", End: "2025-10-09"},
		{Start: "2025-10-10", End: "2025-10-10"},
	}, chunks)
}

func TestAdaptiveDelay_TiersByRecentActivity(t *testing.T) {
	p := &countingProvider{}
	m, _ := newTestManager(t, p)

	require.Equal(t, backgroundFloor, m.adaptiveDelay(0))
}

func TestAdaptiveDelay_RateLimitHitsExtendUpToCap(t *testing.T) {
	p := &countingProvider{}
	m, _ := newTestManager(t, p)

	require.Equal(t, rateLimitCap, m.adaptiveDelay(20))
}

func TestStop_PreventsNewTasksFromBeingScheduled(t *testing.T) {
	p := &countingProvider{}
	m, _ := newTestManager(t, p)
	m.Stop()

	m.Trigger("VNM", models.AssetStock, "2025-10-01", "2025-10-01")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, p.callCount())
}
