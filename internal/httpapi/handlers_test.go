package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kyon9x/vn-market-service/internal/cache"
	"github.com/Kyon9x/vn-market-service/internal/historical"
	"github.com/Kyon9x/vn-market-service/internal/lazyfetch"
	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/provider"
	"github.com/Kyon9x/vn-market-service/internal/quote"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

type stubProvider struct {
	quoteResult provider.QuoteResult
	histResult  provider.HistoryResult
}

func (s *stubProvider) FetchQuote(ctx context.Context, symbol string, assetType models.AssetType) provider.QuoteResult {
	return s.quoteResult
}
func (s *stubProvider) FetchHistory(ctx context.Context, symbol string, assetType models.AssetType, start, end string) provider.HistoryResult {
	return s.histResult
}
func (s *stubProvider) FetchListing(ctx context.Context, assetType models.AssetType) provider.ListingResult {
	return provider.ListingResult{Status: provider.StatusOKEmpty}
}
func (s *stubProvider) FetchGoldSpotByDate(ctx context.Context, date string) provider.HistoryResult {
	return s.histResult
}

// newTestServer wires a full Server against an in-memory store and a stub
// provider, the same bottom-up pattern used by the quote service's tests.
func newTestServer(t *testing.T, p provider.Port) (*Server, *store.AssetRepo) {
	t.Helper()
	db, err := store.Open(store.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	caches := cache.NewInstances()
	assets := store.NewAssetRepo(db)
	quoteRepo := store.NewQuoteRepo(db)
	histRepo := store.NewHistoricalRepo(db)
	limiter := ratelimit.New(ratelimit.DefaultConfig())
	perIP := ratelimit.NewPerIP(ratelimit.DefaultConfig())

	lazyFetch := lazyfetch.New(histRepo, p, limiter)
	histSvc := historical.New(histRepo, p, limiter, lazyFetch)
	freshness := quote.NewFreshnessCoordinator(histSvc)
	quoteSvc := quote.New(caches, quoteRepo, histRepo, p, limiter, histSvc, freshness)

	srv := New(ServerConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"*"}}, Deps{
		Quotes:     quoteSvc,
		Historical: histSvc,
		Assets:     assets,
		Caches:     caches,
		Limiter:    limiter,
		PerIP:      perIP,
		LazyFetch:  lazyFetch,
	})
	return srv, assets
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decodeJSON(t, rec, &body)
	require.Equal(t, "ok", body["status"])
}

func TestHandleSearch_ReturnsCatalogMatches(t *testing.T) {
	srv, assets := newTestServer(t, &stubProvider{})
	require.NoError(t, assets.Upsert(context.Background(), models.Asset{
		Symbol: "VNM", Name: "Vinamilk", AssetType: models.AssetStock,
		AssetClass: "equity", AssetSubClass: "listed", Currency: models.DefaultCurrency,
	}))

	req := httptest.NewRequest(http.MethodGet, "/search?query=vnm", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Results []models.SearchResult `json:"results"`
		Total   int                   `json:"total"`
	}
	decodeJSON(t, rec, &body)
	require.Equal(t, 1, body.Total)
	require.Equal(t, "VNM", body.Results[0].Symbol)
}

func TestHandleQuote_GenericRouteResolvesGoldBeforeCatalog(t *testing.T) {
	p := &stubProvider{quoteResult: provider.QuoteResult{
		Status: provider.StatusOK,
		Quote:  models.Quote{Symbol: models.GoldBaseSymbol, AssetType: models.AssetGold, Close: 75000000, Date: "2025-10-01"},
	}}
	srv, _ := newTestServer(t, p)

	req := httptest.NewRequest(http.MethodGet, "/quote/VN.GOLD", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var q models.Quote
	decodeJSON(t, rec, &q)
	require.Equal(t, models.AssetGold, q.AssetType)
}

func TestHandleQuote_UnknownSymbolReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/quote/NOPE", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleQuote_PerTypeRouteBypassesCatalogLookup(t *testing.T) {
	p := &stubProvider{quoteResult: provider.QuoteResult{
		Status: provider.StatusOK,
		Quote:  models.Quote{Symbol: "VNM", AssetType: models.AssetStock, Close: 80000, Date: "2025-10-01"},
	}}
	srv, _ := newTestServer(t, p)

	req := httptest.NewRequest(http.MethodGet, "/stocks/quote/VNM", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHistory_RejectsFutureEndDate(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/stocks/history/VNM?end_date=2999-01-01", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHistory_RejectsMalformedDate(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/stocks/history/VNM?start_date=not-a-date", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCacheSeed_WithoutSeederReturnsServiceUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPost, "/cache/seed", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleCacheStats_ReportsLimiterOccupancy(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFoundRoute(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
