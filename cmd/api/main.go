// Command api is the goal notification evaluator and API server.
//
// Usage:
//
//	ruck-goals-api
//	API_PORT=8080 ruck-goals-api

// @title Ruck Goal Notifications API
// @version 1.0.0
// @description Evaluates personal goal progress from completed sessions and schedules adaptive push notifications. Session events arrive over HTTP or Postgres LISTEN/NOTIFY; a daily sweep catches goals with no recent activity.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name Ruck
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/api"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/config"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/db"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/dispatch"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/engine"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/listener"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/maintenance"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
	"github.com/orourkera/go-ruck-yourself-sub005/migrations"

	_ "github.com/orourkera/go-ruck-yourself-sub005/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Apply embedded schema migrations
	if err := pool.RunMigrations(ctx, migrations.FS, logger); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	st := store.New(pool.Pool)

	// Push sender (if FCM is configured); nil-safe when disabled
	sender := dispatch.NewPushSender(pool.Pool, cfg.FCMCredentialsFile, logger)
	if sender != nil {
		logger.Info("Push dispatch enabled")
	} else {
		logger.Info("Push dispatch disabled (no FIREBASE_CREDENTIALS_FILE)")
	}

	// Evaluation engine and its workers
	eng := engine.New(st, sender, engine.OptionsFrom(cfg), logger)
	go eng.StartWorkers(ctx)

	// LISTEN/NOTIFY consumer for session-completion events
	go listener.Start(ctx, cfg.DatabaseURL, eng, logger)

	// Maintenance tickers (due-schedule sweep, goal expiry, retention)
	go maintenance.Start(ctx, st, eng, maintenance.ConfigFrom(cfg), logger)

	// Create router
	router := api.NewRouter(pool, st, eng, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Ruck Goal Notifications API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
