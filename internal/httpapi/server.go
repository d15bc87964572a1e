// Package httpapi is the thin HTTP glue satisfying the service's external
// contracts: a gorilla/mux router, request-ID and CORS middleware, and
// handlers that call straight into the core services.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kyon9x/vn-market-service/internal/cache"
	"github.com/Kyon9x/vn-market-service/internal/historical"
	"github.com/Kyon9x/vn-market-service/internal/lazyfetch"
	"github.com/Kyon9x/vn-market-service/internal/quote"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/seeder"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

const version = "1.0.0"

// ServerConfig holds server-level settings.
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		AllowedOrigins: []string{"*"},
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
	}
}

// Deps bundles every core component the handlers call into.
type Deps struct {
	Quotes      *quote.Service
	Historical  *historical.Service
	Assets      *store.AssetRepo
	Caches      *cache.Instances
	Limiter     *ratelimit.Limiter
	PerIP       *ratelimit.PerIPLimiter
	LazyFetch   *lazyfetch.Manager
	Seeder      *seeder.Seeder
	GoldSeeder  *seeder.GoldSeeder
	SeedSymbols map[string]string // not read by any handler; /gold/seed always seeds models.GoldBaseSymbol
}

// Server owns the router and the net/http.Server wrapping it.
type Server struct {
	router  *mux.Router
	http    *http.Server
	deps    Deps
	cfg     ServerConfig
	log     zerolog.Logger
	metrics *rateLimiterMetrics
}

func New(cfg ServerConfig, deps Deps) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		deps:    deps,
		cfg:     cfg,
		log:     log.With().Str("component", "httpapi").Logger(),
		metrics: newRateLimiterMetrics(),
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(s.perIPMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	s.router.HandleFunc("/search/{symbol}", s.handleSearchSymbol).Methods(http.MethodGet)

	s.router.HandleFunc("/quote/{symbol}", s.handleQuote(nil)).Methods(http.MethodGet)
	s.router.HandleFunc("/history/{symbol}", s.handleHistory(nil)).Methods(http.MethodGet)

	s.registerAssetTypeRoutes("/stocks", assetTypeStock)
	s.registerAssetTypeRoutes("/funds", assetTypeFund)
	s.registerAssetTypeRoutes("/indices", assetTypeIndex)
	s.registerAssetTypeRoutes("/gold", assetTypeGold)

	s.router.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)

	s.router.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	s.router.HandleFunc("/cache/cleanup", s.handleCacheCleanup).Methods(http.MethodPost)
	s.router.HandleFunc("/cache/seed", s.handleCacheSeed).Methods(http.MethodPost)
	s.router.HandleFunc("/cache/seed/progress", s.handleCacheSeedProgress).Methods(http.MethodGet)
	s.router.HandleFunc("/cache/lazy-fetch/status", s.handleLazyFetchStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/gold/seed", s.handleGoldSeed).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) registerAssetTypeRoutes(prefix string, t assetTypeTag) {
	s.router.HandleFunc(prefix+"/quote/{symbol}", s.handleQuote(&t)).Methods(http.MethodGet)
	s.router.HandleFunc(prefix+"/history/{symbol}", s.handleHistory(&t)).Methods(http.MethodGet)
}

// Start blocks serving until Shutdown is called or ListenAndServe errors.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
