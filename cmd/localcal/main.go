package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/localcal/internal/config"
	"github.com/example/localcal/internal/logging"
	"github.com/example/localcal/internal/persistence/sqlite"
	"github.com/example/localcal/internal/remote"
	"github.com/example/localcal/internal/syncengine"
	"github.com/example/localcal/internal/viewcache"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "localcal.yaml", "path to configuration file")
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	cache, err := viewcache.New(cfg.CacheSize)
	if err != nil {
		logger.Error("failed to build view cache", "error", err)
		os.Exit(1)
	}

	client := remote.NewHTTPClient(cfg.RemoteBaseURL, cfg.RemoteToken, cfg.RemoteTimeout)

	// The daemon treats a configured remote as reachable; transient call
	// failures downgrade to queued mutations on their own.
	online := func() bool { return true }

	engine := syncengine.New(store, client, cache, online, nil, logger)

	periodic, err := syncengine.NewPeriodic(engine, cfg.SyncSchedule, logger)
	if err != nil {
		logger.Error("failed to schedule sync", "error", err)
		os.Exit(1)
	}

	ctx = logging.ContextWithLogger(ctx, logger)
	if err := engine.Sync(ctx); err != nil {
		logger.Warn("initial sync incomplete", "error", err)
	}

	periodic.Start()
	logger.Info("localcal daemon started", "db", cfg.DatabasePath, "remote", cfg.RemoteBaseURL, "schedule", cfg.SyncSchedule)

	<-ctx.Done()
	logger.Info("shutting down")
	periodic.Stop()
}
