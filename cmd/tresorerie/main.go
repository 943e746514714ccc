package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"tresorerie/internal/cache"
	"tresorerie/internal/cli"
	apphttp "tresorerie/internal/http"
	"tresorerie/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, "server")

	store := cli.OpenStore(context.Background(), logger.Logger, cfg)

	// a nil *amqp.Client must not reach the services as a non-nil interface
	var publisher services.EventPublisher
	amqpClient := cli.ConnectAMQP(logger.Logger, cfg)
	if amqpClient != nil {
		publisher = amqpClient
	} else {
		logger.Info("AMQP disabled - transactions will not be exported")
	}

	// dashboards read the store on every request unless a cache is configured
	var snapshots cache.Cache[*services.Snapshot]
	opts := []apphttp.Option{apphttp.WithLogger(logger)}
	if cfg.CacheSize > 0 {
		lru := cache.NewLRUCache[*services.Snapshot](cfg.CacheSize, cfg.CacheTTL)
		cacheManager := cache.NewManager()
		cacheManager.Register(lru)
		cacheManager.StartCleanup(time.Minute)
		snapshots = lru
		opts = append(opts, apphttp.WithCacheManager(cacheManager))
		logger.Warn("Dashboard snapshot cache enabled - writes from other processes show up after the TTL",
			"size", cfg.CacheSize, "ttl", cfg.CacheTTL)
	}

	svc := apphttp.NewServices(store.Store, publisher, snapshots)
	srv := apphttp.NewServer(":"+cfg.Port, svc, opts...)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if err := store.Cleanup(); err != nil {
			logger.Warn("Store close error", "error", err)
		}
	})

	logger.Info("Starting tresorerie server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
