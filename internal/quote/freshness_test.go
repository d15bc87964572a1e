package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kyon9x/vn-market-service/internal/models"
)

type recordingFetcher struct {
	mu    sync.Mutex
	calls [][2]string // [start, end] pairs
}

func (r *recordingFetcher) Fetch(ctx context.Context, symbol string, assetType models.AssetType, start, end string) ([]models.HistoricalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]string{start, end})
	return nil, nil
}

func (r *recordingFetcher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestFreshnessCoordinator_WeekdayStaleTriggersTopUp(t *testing.T) {
	fetcher := &recordingFetcher{}
	fc := NewFreshnessCoordinator(fetcher)
	monday := time.Date(2025, 10, 6, 15, 0, 0, 0, time.UTC) // Monday
	fc.now = func() time.Time { return monday }

	fc.Observe("VNM", models.AssetStock, "2025-10-03")

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestFreshnessCoordinator_WeekdayFreshSkipsTopUp(t *testing.T) {
	fetcher := &recordingFetcher{}
	fc := NewFreshnessCoordinator(fetcher)
	now := time.Date(2025, 10, 6, 0, 20, 0, 0, time.UTC) // Monday, record is 20 minutes old
	fc.now = func() time.Time { return now }

	fc.Observe("VNM", models.AssetStock, "2025-10-06")

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, fetcher.callCount())
}

func TestFreshnessCoordinator_WeekendNonFridayTriggersFridayTopUp(t *testing.T) {
	fetcher := &recordingFetcher{}
	fc := NewFreshnessCoordinator(fetcher)
	saturday := time.Date(2025, 10, 11, 9, 0, 0, 0, time.UTC) // Saturday
	fc.now = func() time.Time { return saturday }

	fc.Observe("VNM", models.AssetStock, "2025-10-09") // Thursday, not Friday

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 10*time.Millisecond)
}
