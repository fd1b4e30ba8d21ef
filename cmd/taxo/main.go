// Package main is the entry point for the taxonomy API server.
// It loads configuration, connects to PostgreSQL and Valkey, starts the
// path rebuild worker, sets up routing, and runs the HTTP server with
// graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxo/internal/cache"
	"taxo/internal/config"
	"taxo/internal/database"
	"taxo/internal/handlers"
	"taxo/internal/queue"
	"taxo/internal/router"
	"taxo/internal/store"
	"taxo/internal/taxonomy"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed development data (no-op if data already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey (Redis-compatible queue + cache store).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	// Data stores and the tree projection cache.
	categoryStore := store.NewCategoryStore(db)
	treeCache := cache.NewTreeCache(valkeyClient, cache.DefaultTreeTTL)

	// Rebuild queue and its worker. A single worker keeps rebuilds for
	// the same node in order.
	rebuildQueue := queue.New(valkeyClient)
	rebuilder := store.NewPathRebuilder(db)
	worker := queue.NewWorker(rebuildQueue, rebuilder, treeCache)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()

	// Service layer and handlers.
	svc := taxonomy.NewService(categoryStore, store.NewTreeGuard(categoryStore), rebuildQueue, treeCache)
	categoryHandlers := handlers.NewCategories(svc)

	// Set up the Chi router with all middleware and routes.
	r, stopLimiter := router.New(categoryHandlers, rebuildQueue)
	defer stopLimiter()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop the rebuild worker after the server has drained so late
	// mutations still get their rebuild picked up on next start.
	stopWorker()
	<-workerDone

	slog.Info("server stopped gracefully")
}
