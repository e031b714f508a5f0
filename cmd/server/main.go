package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgestack/logcenter/internal/adapter/api"
	"github.com/edgestack/logcenter/internal/adapter/metrics"
	"github.com/edgestack/logcenter/internal/adapter/repository/postgres"
	redisrepo "github.com/edgestack/logcenter/internal/adapter/repository/redis"
	"github.com/edgestack/logcenter/internal/manager"
	"github.com/edgestack/logcenter/internal/pkg/config"
	"github.com/edgestack/logcenter/internal/pkg/logger"
	"github.com/edgestack/logcenter/internal/stream"

	_ "github.com/lib/pq" // postgres driver for the optional audit sink
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	m := metrics.New()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Optional external adapters ---
	opts := manager.Options{}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		keyRepo, err := redisrepo.NewKeyRepository(ctx, redisClient, log)
		if err != nil {
			log.Warn("redis unavailable, api keys will not survive restarts", "error", err)
		} else {
			opts.KeyPersistence = keyRepo
		}
	}

	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Warn("failed to open postgres connection, audit sink disabled", "error", err)
		} else {
			defer db.Close()
			opts.AuditSink = postgres.NewAuditRepository(db, log)
		}
	}

	// --- Central registry ---
	mgr, err := manager.New(ctx, manager.Config{
		LogRoot:          cfg.LogRoot,
		BufferSize:       cfg.BufferSize,
		FlushInterval:    cfg.FlushInterval,
		RetentionDays:    cfg.RetentionDays,
		Compress:         cfg.Compress,
		Streaming:        cfg.Streaming,
		IndexSize:        cfg.IndexSize,
		MaxSearchResults: cfg.MaxSearchResults,
	}, log, m, opts)
	if err != nil {
		log.Error("failed to initialize log manager", "error", err)
		os.Exit(1)
	}

	// --- Real-time push server ---
	streamServer := stream.New(stream.Config{
		Addr:              cfg.StreamAddr,
		MaxConnections:    cfg.MaxConnections,
		HeartbeatInterval: cfg.HeartbeatInterval,
		MessagesPerSec:    cfg.MessagesPerSec,
	}, mgr, log, m)
	if err := streamServer.Start(); err != nil {
		log.Error("failed to start stream server", "error", err)
		shutdownAll(log, mgr, nil)
		os.Exit(1)
	}

	// --- Management API ---
	apiRouter := api.NewRouter(api.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxSearchResults:  cfg.MaxSearchResults,
		MaxDownloadBytes:  cfg.MaxDownloadBytes,
	}, mgr, log, m)
	apiServer := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      apiRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting management api", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("management api failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("management api shutdown failed", "error", err)
	}
	if err := streamServer.Shutdown(shutdownCtx); err != nil {
		log.Error("stream server shutdown failed", "error", err)
	}
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Error("manager shutdown failed", "error", err)
	}

	log.Info("shut down gracefully")
}

// shutdownAll is the best-effort flush-and-close path used when startup fails
// partway.
func shutdownAll(log *slog.Logger, mgr *manager.Manager, streamServer *stream.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if streamServer != nil {
		_ = streamServer.Shutdown(ctx)
	}
	if mgr != nil {
		if err := mgr.Shutdown(ctx); err != nil {
			log.Error("best-effort shutdown failed", "error", err)
		}
	}
}
