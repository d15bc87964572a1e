package store

import (
	"context"
	"testing"
	"time"

	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHistoricalRepo_StoreAndFetchRange(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewHistoricalRepo(db)

	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-01", Close: 80000,
	}))
	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-02", Close: 81000,
	}))

	dates, err := repo.CachedDatesInRange(ctx, "VNM", models.AssetStock, "2025-10-01", "2025-10-03")
	require.NoError(t, err)
	require.Len(t, dates, 2)
	_, ok := dates["2025-10-03"]
	require.False(t, ok)

	recs, err := repo.CachedRecordsInRange(ctx, "VNM", models.AssetStock, "2025-10-01", "2025-10-03")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, float64(80000), recs[0].Close)
}

func TestHistoricalRepo_CachedRecordsInRangeExcludesPlaceholders(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewHistoricalRepo(db)

	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-01", Close: 80000,
	}))
	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-02",
	}))

	dates, err := repo.CachedDatesInRange(ctx, "VNM", models.AssetStock, "2025-10-01", "2025-10-02")
	require.NoError(t, err)
	require.Len(t, dates, 2, "placeholder dates still count as already attempted")

	recs, err := repo.CachedRecordsInRange(ctx, "VNM", models.AssetStock, "2025-10-01", "2025-10-02")
	require.NoError(t, err)
	require.Len(t, recs, 1, "placeholder rows must never be returned as data")
	require.Equal(t, "2025-10-01", recs[0].Date)
}

func TestHistoricalRepo_PlaceholderNeverOverwritesRealRecord(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewHistoricalRepo(db)

	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-01", Close: 80000,
	}))
	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-01",
	}))

	recs, err := repo.CachedRecordsInRange(ctx, "VNM", models.AssetStock, "2025-10-01", "2025-10-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, float64(80000), recs[0].Close)
}

func TestHistoricalRepo_MostRecentRecordSkipsPlaceholders(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewHistoricalRepo(db)

	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-01", Close: 80000,
	}))
	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-02",
	}))

	rec, err := repo.MostRecentRecord(ctx, "VNM", models.AssetStock)
	require.NoError(t, err)
	require.Equal(t, "2025-10-01", rec.Date)
}

func TestHistoricalRepo_CountRowsForSeedSkipCheck(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewHistoricalRepo(db)

	n, err := repo.CountRows(ctx, models.AssetStock)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, repo.Store(ctx, models.HistoricalRecord{
		Symbol: "VNM", AssetType: models.AssetStock, Date: "2025-10-01", Close: 80000,
	}))
	n, err = repo.CountRows(ctx, models.AssetStock)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAssetRepo_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db)

	asset := models.Asset{
		Symbol: "VNM", Name: "Vinamilk", AssetType: models.AssetStock,
		AssetClass: "equity", AssetSubClass: "listed", Currency: "VND",
	}
	require.NoError(t, repo.Upsert(ctx, asset))

	got, err := repo.Get(ctx, "VNM")
	require.NoError(t, err)
	require.Equal(t, "Vinamilk", got.Name)

	results, err := repo.Search(ctx, "vina", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestQuoteRepo_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewQuoteRepo(db)

	q := models.Quote{Symbol: "VNM", AssetType: models.AssetStock, Close: 80000, Date: "2025-10-01"}
	require.NoError(t, repo.Put(ctx, q, 5*time.Minute))

	got, ok, err := repo.Get(ctx, "VNM", models.AssetStock)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(80000), got.Close)
}
