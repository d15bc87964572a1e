// Package policy implements the asset cache policy strategy: one
// interface with a single method controlling whether a fetch attempt
// that found no data gets written as a placeholder row.
package policy

import (
	"context"

	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

// CachePolicy decides what happens after a historical fetch attempt for
// one date comes back empty.
type CachePolicy interface {
	// MarkFetched records that (symbol, assetType, date) was attempted.
	// Implementations that write placeholders call repo.Store with a
	// zero-valued record; implementations that opt out do nothing.
	MarkFetched(ctx context.Context, repo *store.HistoricalRepo, symbol string, assetType models.AssetType, date string) error
}

// NoPlaceholderPolicy leaves no trace of an empty fetch attempt: the next
// read-through pass will retry the same date. Used by STOCK, FUND, INDEX,
// and GOLD, where a missing day usually means "not yet published" rather
// than "will never exist".
type NoPlaceholderPolicy struct{}

func (NoPlaceholderPolicy) MarkFetched(ctx context.Context, repo *store.HistoricalRepo, symbol string, assetType models.AssetType, date string) error {
	return nil
}

// LegacySharedPolicy writes an all-zero placeholder row so a known-empty
// date is never re-fetched. Kept for asset types that predate the
// opt-out policies above and still rely on placeholder suppression.
type LegacySharedPolicy struct{}

func (LegacySharedPolicy) MarkFetched(ctx context.Context, repo *store.HistoricalRepo, symbol string, assetType models.AssetType, date string) error {
	return repo.Store(ctx, models.HistoricalRecord{
		Symbol:    symbol,
		AssetType: assetType,
		Date:      date,
	})
}

// ForAssetType returns the policy bound to assetType. All four closed
// enum members currently opt out of placeholder writes; LegacySharedPolicy
// is reachable only by direct construction for callers that still need it.
func ForAssetType(t models.AssetType) CachePolicy {
	switch t {
	case models.AssetStock, models.AssetFund, models.AssetIndex, models.AssetGold:
		return NoPlaceholderPolicy{}
	default:
		return NoPlaceholderPolicy{}
	}
}
