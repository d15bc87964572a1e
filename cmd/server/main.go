// Command server runs the market-data caching service: an HTTP API plus
// two one-shot maintenance subcommands (catalog seed, gold history seed)
// that share the same wiring as the serve command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Kyon9x/vn-market-service/internal/applog"
	"github.com/Kyon9x/vn-market-service/internal/cache"
	"github.com/Kyon9x/vn-market-service/internal/config"
	"github.com/Kyon9x/vn-market-service/internal/historical"
	"github.com/Kyon9x/vn-market-service/internal/httpapi"
	"github.com/Kyon9x/vn-market-service/internal/lazyfetch"
	"github.com/Kyon9x/vn-market-service/internal/maintenance"
	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/providers/sjc"
	"github.com/Kyon9x/vn-market-service/internal/quote"
	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
	"github.com/Kyon9x/vn-market-service/internal/seeder"
	"github.com/Kyon9x/vn-market-service/internal/store"
)

const appName = "vn-market-service"

// app bundles every wired component, built once and shared by serve,
// seed, and gold-seed — replacing the source's module-level globals with
// one explicit context passed down from main.
type app struct {
	cfg        config.Config
	db         *store.DB
	assets     *store.AssetRepo
	quotes     *quote.Service
	historical *historical.Service
	limiter    *ratelimit.Limiter
	perIP      *ratelimit.PerIPLimiter
	lazyFetch  *lazyfetch.Manager
	maint      *maintenance.Runner
	seeder     *seeder.Seeder
	goldSeeder *seeder.GoldSeeder
	caches     *cache.Instances
}

func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(store.DefaultConfig(cfg.Database.Path))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	providerClient := sjc.NewClient(sjc.Config{
		BaseURL:        cfg.Provider.BaseURL,
		RequestTimeout: cfg.Provider.RequestTimeout,
		UserAgent:      appName,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxPerMinute:  cfg.RateLimit.MaxPerMinute,
		MaxPerHour:    cfg.RateLimit.MaxPerHour,
		MinIntervalMS: cfg.RateLimit.MinIntervalMS,
		MaxQueue:      100,
		Enabled:       true,
	})
	perIP := ratelimit.NewPerIP(ratelimit.Config{
		MaxPerMinute:  cfg.RateLimit.MaxPerMinute,
		MaxPerHour:    cfg.RateLimit.MaxPerHour,
		MinIntervalMS: cfg.RateLimit.MinIntervalMS,
		Enabled:       true,
	})

	assets := store.NewAssetRepo(db)
	quoteRepo := store.NewQuoteRepo(db)
	histRepo := store.NewHistoricalRepo(db)
	caches := cache.NewInstances()

	lazyFetch := lazyfetch.New(histRepo, providerClient, limiter)
	histSvc := historical.New(histRepo, providerClient, limiter, lazyFetch)
	histSvc.EnableLazyMode(models.AssetGold)

	freshness := quote.NewFreshnessCoordinator(histSvc)
	histSvc.SetObserver(freshness)
	quoteSvc := quote.New(caches, quoteRepo, histRepo, providerClient, limiter, histSvc, freshness)

	popular := make([]maintenance.PopularQuote, 0, len(cfg.Popular))
	for _, p := range cfg.Popular {
		popular = append(popular, maintenance.PopularQuote{Symbol: p.Symbol, AssetType: models.AssetType(p.AssetType)})
	}
	maint := maintenance.New(caches, quoteRepo, perIP, providerClient, limiter, assets, popular)

	return &app{
		cfg:        cfg,
		db:         db,
		assets:     assets,
		quotes:     quoteSvc,
		historical: histSvc,
		limiter:    limiter,
		perIP:      perIP,
		lazyFetch:  lazyFetch,
		maint:      maint,
		seeder:     seeder.New(assets, providerClient, limiter),
		goldSeeder: seeder.NewGoldSeeder(histRepo, providerClient, limiter),
		caches:     caches,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("close store")
	}
}

func main() {
	applog.Bootstrap()

	var cfgPath string

	root := &cobra.Command{
		Use:     "vn-market-service",
		Short:   "Caching and freshness-management layer in front of a Vietnamese market-data provider.",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (defaults to VNMARKET_CONFIG or built-in defaults)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the asset catalog from the provider's listing endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cfgPath)
		},
	}

	var goldStart string
	goldSeedCmd := &cobra.Command{
		Use:   "gold-seed",
		Short: "Backfill gold spot history weekday by weekday from a start date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoldSeed(cfgPath, goldStart)
		},
	}
	goldSeedCmd.Flags().StringVar(&goldStart, "start-date", "", "first date to fetch, YYYY-MM-DD (required)")
	_ = goldSeedCmd.MarkFlagRequired("start-date")

	root.AddCommand(serveCmd, seedCmd, goldSeedCmd)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func runServe(cfgPath string) error {
	a, err := buildApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for _, res := range a.seeder.SeedAll(ctx) {
			if res.Err != nil {
				log.Warn().Err(res.Err).Str("asset_type", string(res.AssetType)).Msg("startup seed category failed")
				continue
			}
			if res.Inserted > 0 {
				log.Info().Str("asset_type", string(res.AssetType)).Int("inserted", res.Inserted).Msg("startup seed category done")
			}
		}
	}()

	a.maint.Start(ctx)
	defer a.maint.Stop()

	srv := httpapi.New(httpapi.ServerConfig{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		AllowedOrigins: a.cfg.CORS.AllowedOrigins,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
	}, httpapi.Deps{
		Quotes:     a.quotes,
		Historical: a.historical,
		Assets:     a.assets,
		Caches:     a.caches,
		Limiter:    a.limiter,
		PerIP:      a.perIP,
		LazyFetch:  a.lazyFetch,
		Seeder:     a.seeder,
		GoldSeeder: a.goldSeeder,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server shutdown complete")
	return nil
}

func runSeed(cfgPath string) error {
	a, err := buildApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.close()

	interactive := applog.IsInteractive()
	var spin *applog.Spinner
	if interactive {
		spin = applog.NewSpinner("seed", 0)
	}

	results := a.seeder.SeedAll(context.Background())
	for _, res := range results {
		if spin != nil {
			spin.Tick()
		}
		if res.Err != nil {
			log.Error().Err(res.Err).Str("asset_type", string(res.AssetType)).Msg("seed category failed")
			continue
		}
		log.Info().Str("asset_type", string(res.AssetType)).Int("inserted", res.Inserted).Msg("seed category done")
	}
	if spin != nil {
		spin.Finish()
	}
	return nil
}

func runGoldSeed(cfgPath, startDate string) error {
	a, err := buildApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.goldSeeder.Run(context.Background(), models.GoldBaseSymbol, startDate)
	if err != nil {
		return fmt.Errorf("gold seed: %w", err)
	}
	log.Info().Int("days_fetched", n).Msg("gold seed complete")
	return nil
}
