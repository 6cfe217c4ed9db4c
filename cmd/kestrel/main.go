// Kestrel - Credit card reward scoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/action"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/eligibility"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Cooldown store over the cache
	cooldown := cache.NewCooldown(cacheImpl, time.Duration(cfg.Engine.CooldownMinutes)*time.Minute)
	slog.Info("cooldown store initialized", "minutes", cfg.Engine.CooldownMinutes)

	// Load the card catalog (CSV first, repository fallback)
	cat, err := loadCatalog(ctx, cfg.Catalog, repo)
	if err != nil {
		slog.Error("failed to load card catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("card catalog loaded", "cards", cat.Len())

	// Initialize the eligibility Screener
	screener, err := eligibility.NewScreener()
	if err != nil {
		slog.Error("failed to initialize screener", "error", err)
		os.Exit(1)
	}
	if err := loadScreensFromDatabase(ctx, repo, screener); err != nil {
		slog.Error("failed to load screen rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screener initialized", "screens", screener.ScreenCount())

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, action.NewSelector())
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, cooldown, screener, cat, cfg.Engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides layers KESTREL_* environment settings over the
// tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_CATALOG_CSV"); v != "" {
		cfg.Catalog.CSVPath = v
	}
	if os.Getenv("KESTREL_CATALOG_STRICT") == "true" {
		cfg.Catalog.Strict = true
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_BASELINE_SPEND"); v != "" {
		if spend, err := strconv.ParseFloat(v, 64); err == nil && spend > 0 {
			cfg.Engine.BaselineMonthlySpend = spend
		}
	}
	if v := os.Getenv("KESTREL_COOLDOWN_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			cfg.Engine.CooldownMinutes = minutes
		}
	}
	if v := os.Getenv("KESTREL_RANKING_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Engine.JitterEnabled = true
			cfg.Engine.RankingSeed = seed
		}
	}
}

// loadCatalog loads cards from the configured CSV, mirrors them into
// the repository so hot reloads work, and falls back to stored cards
// when no CSV is available.
func loadCatalog(ctx context.Context, cfg domain.CatalogConfig, repo domain.Repository) (*catalog.Catalog, error) {
	if cfg.CSVPath != "" {
		if _, err := os.Stat(cfg.CSVPath); err == nil {
			cat, violations, err := catalog.LoadFile(cfg.CSVPath, catalog.Options{Strict: cfg.Strict})
			if err != nil {
				return nil, err
			}
			for _, v := range violations {
				slog.Warn("catalog row skipped", "violation", v.String())
			}

			for _, card := range cat.Cards() {
				if err := repo.SaveCard(ctx, card); err != nil {
					slog.Warn("failed to mirror card to repository",
						"card_id", card.ID,
						"error", err,
					)
				}
			}
			return cat, nil
		}
		slog.Warn("catalog CSV not found, falling back to repository", "path", cfg.CSVPath)
	}

	cards, err := repo.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.FromCards(cards)
}

// loadScreensFromDatabase swaps in stored screen rules when any exist.
// With an empty table the built-in default screen stays active.
func loadScreensFromDatabase(ctx context.Context, repo domain.Repository, screener *eligibility.Screener) error {
	rules, err := repo.ListScreenRules(ctx)
	if err != nil {
		slog.Warn("failed to list screen rules from database", "error", err)
		return nil // Keep the default screen - rules can be added via API
	}

	if len(rules) > 0 {
		slog.Info("loading screen rules from database", "count", len(rules))
		return screener.ReloadRules(rules)
	}

	slog.Info("no screen rules in database - using default screen")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║      Reward & Recommendation Engine       ║")
	fmt.Println("  ║     The right card, every purchase.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/analyze-transaction   - Score a transaction against the catalog")
	fmt.Println("    POST /api/v1/trigger-classify      - Decide whether to surface a recommendation")
	fmt.Println("    POST /api/v1/select-action         - Run the add/switch/none cascade")
	fmt.Println("    POST /api/v1/personalized-ranking  - Rank cards for a spending profile")
	fmt.Println("    POST /api/v1/estimate-rewards      - Project rewards for one card")
	fmt.Println("    POST /api/v1/optimize-portfolio    - Review a card portfolio")
	fmt.Println("    GET  /api/v1/cards                 - List catalog cards")
	fmt.Println("    POST /api/v1/cards                 - Create a card")
	fmt.Println("    POST /api/v1/cards/reload          - Hot-reload the catalog from database")
	fmt.Println("    GET  /api/v1/screens               - List eligibility screens")
	fmt.Println("    POST /api/v1/screens               - Create an eligibility screen")
	fmt.Println("    POST /api/v1/screens/reload        - Hot-reload screens from database")
	fmt.Println("    GET  /health                       - Health check")
	fmt.Println()
}
