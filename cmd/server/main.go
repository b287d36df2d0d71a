package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/api"
	"github.com/Priya8975/zap-goal-tracker/internal/config"
	"github.com/Priya8975/zap-goal-tracker/internal/metrics"
	"github.com/Priya8975/zap-goal-tracker/internal/relay"
	"github.com/Priya8975/zap-goal-tracker/internal/service"
	"github.com/Priya8975/zap-goal-tracker/internal/store"
	ws "github.com/Priya8975/zap-goal-tracker/internal/websocket"
	"github.com/Priya8975/zap-goal-tracker/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	var pgStore *store.PostgresStore
	if cfg.DatabaseURL != "" {
		pgStore, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	deps := api.Deps{
		Metrics:     m,
		Source:      cfg.EventSource,
		RateLimiter: api.NewRateLimiter(redisStore.Client(), logger),
		RateLimit:   cfg.RateLimitPerSecond,
		Logger:      logger,
	}

	var source service.Source
	switch cfg.EventSource {
	case config.SourceArchive:
		source = pgStore
	default:
		cb := relay.NewCircuitBreaker(redisStore.Client(), logger)
		relayClient := relay.NewClient(cfg.RelayURLs, cb, m, logger)
		deps.Relays = relayClient
		source = relayClient
		if pgStore != nil {
			source = service.NewArchivingSource(relayClient, pgStore, logger)
		}
		logger.Info("querying relays", "relays", relayClient.Relays())
	}
	if pgStore != nil {
		deps.Archive = pgStore
	}

	svc := service.New(source, redisStore, m, logger, service.Options{
		QueryTimeout: cfg.QueryTimeout,
		CacheTTL:     cfg.CacheTTL,
	})
	deps.Goals = svc

	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	deps.Hub = hub

	queue := worker.NewQueue(redisStore.Client())
	refresher := worker.NewRefresher(svc, queue, hub, m, logger, cfg.RefreshInterval)
	deps.Watcher = refresher
	deps.Queue = queue

	pool := worker.NewPool(cfg.NumWorkers, refresher, logger)
	pool.Start(ctx)

	dispatcher := worker.NewDispatcher(redisStore.Client(), pool, logger)
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(dispatcherDone)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "source", cfg.EventSource)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	<-dispatcherDone
	pool.Stop()

	logger.Info("server stopped")
}
