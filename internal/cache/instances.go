package cache

import (
	"fmt"
	"time"

	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/search"
)

// Quote TTLs by asset type.
const (
	quoteTTLFund    = 24 * time.Hour
	quoteTTLDefault = time.Hour
	quoteTTLCrypto  = 15 * time.Minute
)

// QuoteTTL returns the configured TTL for an asset type's quote cache
// entry: FUND 24h, STOCK/INDEX/GOLD 1h, CRYPTO 15m, default 1h.
func QuoteTTL(t models.AssetType) time.Duration {
	switch t {
	case models.AssetFund:
		return quoteTTLFund
	case models.AssetStock, models.AssetIndex, models.AssetGold:
		return quoteTTLDefault
	case "CRYPTO":
		return quoteTTLCrypto
	default:
		return quoteTTLDefault
	}
}

// QuoteKey builds the cache key for a (symbol, asset_type) pair.
func QuoteKey(symbol string, t models.AssetType) string {
	return fmt.Sprintf("%s:%s", t, models.NormalizeSymbol(symbol))
}

// SearchKey builds the cache key for a search query.
func SearchKey(query string) string {
	return search.Normalize(query)
}

const (
	quoteCacheMaxSize   = 500
	quoteCacheTTL       = 300 * time.Second
	searchCacheMaxSize  = 200
	searchCacheTTL      = 1800 * time.Second
	generalCacheMaxSize = 1000
	generalCacheTTL     = 600 * time.Second
)

// Instances bundles the three named in-memory caches the service keeps:
// quotes, search results, and a general-purpose bucket.
type Instances struct {
	Quotes   *Cache[models.Quote]
	Searches *Cache[[]models.SearchResult]
	General  *Cache[any]
}

// NewInstances constructs the three named caches with their fixed
// sizes/TTLs. Callers pass an asset-specific TTL to Quotes.Set rather
// than relying on this default.
func NewInstances() *Instances {
	return &Instances{
		Quotes:   New[models.Quote](quoteCacheMaxSize, quoteCacheTTL),
		Searches: New[[]models.SearchResult](searchCacheMaxSize, searchCacheTTL),
		General:  New[any](generalCacheMaxSize, generalCacheTTL),
	}
}

// CleanupExpired sweeps all three caches, returning the total removed.
func (i *Instances) CleanupExpired() int {
	return i.Quotes.CleanupExpired() + i.Searches.CleanupExpired() + i.General.CleanupExpired()
}
