package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-tracker/internal/api"
	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/database"
	"portfolio-tracker/internal/logger"
	"portfolio-tracker/internal/marketdata"
	"portfolio-tracker/internal/portfolio"
	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/internal/storage"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	seeded, err := database.SeedAdmin(db, cfg.Auth.AdminUsername, cfg.Auth.AdminToken)
	if err != nil {
		log.Fatal("Failed to seed administrator", zap.Error(err))
	}
	if seeded {
		log.Info("Administrator account ready", zap.String("username", cfg.Auth.AdminUsername))
	} else if cfg.Auth.AdminToken == "" {
		log.Warn("auth.admin_token is not set, no administrator was seeded")
	}

	store := storage.NewGormStore(db)

	// Quote pipeline: market data client, TTL cache, bounded fan-out.
	client := marketdata.NewClient(&cfg.MarketData, log)
	cache := quotes.NewCache(client, cfg.Quotes.CacheTTL)
	fetcher := quotes.NewBatchFetcher(cache, log, cfg.Quotes.FetchTimeout, cfg.Quotes.Concurrency)

	server := api.NewServer(cfg.Server, api.Deps{
		Portfolios: portfolio.NewPortfolioService(store, fetcher, cfg.Quotes, log),
		Watchlists: portfolio.NewWatchlistService(store, fetcher, log),
		Users:      portfolio.NewUserService(store, log),
		Settings:   portfolio.NewSettingsService(store),
		Quotes:     cache,
		Market:     client,
		Cache:      cache,
	}, log)
	errc := server.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigchan:
		log.Info("Shutdown signal received, gracefully shutting down...")
	case err := <-errc:
		if err != nil {
			log.Error("Server stopped unexpectedly", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("Portfolio tracker has been shut down.")
}
