package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Kyon9x/vn-market-service/internal/apperr"
	"github.com/Kyon9x/vn-market-service/internal/calendar"
	"github.com/Kyon9x/vn-market-service/internal/models"
)

// assetTypeTag pins a route to one asset type, bypassing symbol-based
// asset-type resolution for the per-type /stocks, /funds, /indices, /gold
// route families.
type assetTypeTag models.AssetType

var (
	assetTypeStock = assetTypeTag(models.AssetStock)
	assetTypeFund  = assetTypeTag(models.AssetFund)
	assetTypeIndex = assetTypeTag(models.AssetIndex)
	assetTypeGold  = assetTypeTag(models.AssetGold)
)

const defaultHistoryLookback = 365 * 24 * time.Hour
const defaultSearchLimit = 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "vn-market-service",
		"version": version,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.deps.Assets.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}
	out := make([]models.SearchResult, 0, len(results))
	for _, a := range results {
		out = append(out, models.SearchResultFromAsset(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out, "total": len(out)})
}

func (s *Server) handleSearchSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := models.NormalizeSymbol(mux.Vars(r)["symbol"])
	a, err := s.deps.Assets.Get(r.Context(), symbol)
	if err != nil {
		writeError(w, apperr.NotFound("symbol not found: "+symbol))
		return
	}
	writeJSON(w, http.StatusOK, models.SearchResultFromAsset(a))
}

// handleQuote returns a handler bound to a fixed asset type, or nil to
// resolve the asset type from the symbol (the generic /quote/{symbol}
// route, which checks gold before the asset catalog — an arbitrary but
// stable precedence, documented rather than "fixed").
func (s *Server) handleQuote(fixed *assetTypeTag) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := models.NormalizeSymbol(mux.Vars(r)["symbol"])
		assetType, err := s.resolveAssetType(r.Context(), symbol, fixed)
		if err != nil {
			writeError(w, err)
			return
		}

		q, err := s.deps.Quotes.Get(r.Context(), symbol, assetType)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func (s *Server) handleHistory(fixed *assetTypeTag) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := models.NormalizeSymbol(mux.Vars(r)["symbol"])
		assetType, err := s.resolveAssetType(r.Context(), symbol, fixed)
		if err != nil {
			writeError(w, err)
			return
		}

		start, end, err := parseHistoryWindow(r)
		if err != nil {
			writeError(w, err)
			return
		}

		recs, err := s.deps.Historical.Fetch(r.Context(), symbol, assetType, start, end)
		if err != nil {
			writeError(w, err)
			return
		}

		class, subClass, _ := models.ClassificationFor(assetType)
		currency, dataSource := models.DefaultCurrency, ""
		if a, aerr := s.deps.Assets.Get(r.Context(), symbol); aerr == nil {
			class, subClass, currency, dataSource = a.AssetClass, a.AssetSubClass, a.Currency, a.DataSource
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"symbol":          symbol,
			"history":         recs,
			"asset_class":     class,
			"asset_sub_class": subClass,
			"currency":        currency,
			"data_source":     dataSource,
		})
	}
}

func parseHistoryWindow(r *http.Request) (start, end string, err error) {
	now := time.Now().UTC()
	startStr := r.URL.Query().Get("start_date")
	endStr := r.URL.Query().Get("end_date")

	startT := now.Add(-defaultHistoryLookback)
	endT := now
	if startStr != "" {
		startT, err = calendar.ParseDate(startStr)
		if err != nil {
			return "", "", apperr.InvalidInput("invalid start_date: " + startStr)
		}
	}
	if endStr != "" {
		endT, err = calendar.ParseDate(endStr)
		if err != nil {
			return "", "", apperr.InvalidInput("invalid end_date: " + endStr)
		}
	}
	if endT.After(now) {
		return "", "", apperr.InvalidInput("end_date cannot be in the future")
	}
	if endT.Before(startT) {
		return "", "", apperr.InvalidInput("end_date cannot precede start_date")
	}
	return calendar.FormatDate(startT), calendar.FormatDate(endT), nil
}

// resolveAssetType honors a route-pinned asset type first; otherwise it
// checks for a gold symbol, then falls back to the asset catalog.
func (s *Server) resolveAssetType(ctx context.Context, symbol string, fixed *assetTypeTag) (models.AssetType, error) {
	if fixed != nil {
		return models.AssetType(*fixed), nil
	}
	if _, _, ok := models.ParseGoldSymbol(symbol); ok {
		return models.AssetGold, nil
	}
	a, err := s.deps.Assets.Get(ctx, symbol)
	if err != nil {
		return "", apperr.NotFound("symbol not found: " + symbol)
	}
	return a.AssetType, nil
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Limiter.CurrentStats()
	s.metrics.observe(stats)
	writeJSON(w, http.StatusOK, map[string]any{
		"rate_limiter":      stats,
		"tracked_ips":       s.deps.PerIP.TrackedCount(),
		"lazy_fetch_active": s.deps.LazyFetch.ActiveCount(),
	})
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.deps.Caches.CleanupExpired()
	idleIPs := s.deps.PerIP.Cleanup()
	writeJSON(w, http.StatusOK, map[string]any{"cache_entries_removed": removed, "idle_ips_removed": idleIPs})
}

func (s *Server) handleCacheSeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Seeder == nil {
		writeError(w, apperr.New(apperr.KindServiceUnavailable, "seeder not configured"))
		return
	}
	go s.deps.Seeder.SeedAll(context.Background())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "seeding started"})
}

func (s *Server) handleCacheSeedProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "see service logs for seed progress"})
}

func (s *Server) handleLazyFetchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":        r.URL.Query().Get("symbol"),
		"active_tasks":  s.deps.LazyFetch.ActiveCount(),
	})
}

func (s *Server) handleGoldSeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.GoldSeeder == nil {
		writeError(w, apperr.New(apperr.KindServiceUnavailable, "gold seeder not configured"))
		return
	}
	startDate := r.URL.Query().Get("start_date")
	if startDate == "" {
		writeError(w, apperr.InvalidInput("start_date is required"))
		return
	}
	if _, err := calendar.ParseDate(startDate); err != nil {
		writeError(w, apperr.InvalidInput("invalid start_date: "+startDate))
		return
	}
	go s.deps.GoldSeeder.Run(context.Background(), models.GoldBaseSymbol, startDate)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "gold seed started"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperr.NotFound("no such route: "+r.URL.Path))
}
