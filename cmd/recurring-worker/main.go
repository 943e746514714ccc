package main

import (
	"context"
	"time"

	"tresorerie/internal/cli"
	"tresorerie/internal/services"
	"tresorerie/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, "recurring-worker")

	logger.Info("Starting recurring-worker")

	store := cli.OpenStore(context.Background(), logger.Logger, cfg)

	var opts []services.ProcessorOption
	amqpClient := cli.ConnectAMQP(logger.Logger, cfg)
	if amqpClient != nil {
		opts = append(opts, services.WithPublisher(amqpClient))
		logger.Info("Created transactions will be exported via sheets-exporter")
	} else {
		logger.Info("AMQP disabled - created transactions will not be exported")
	}

	processor := services.NewRecurringProcessor(store.Store, opts...)
	w := worker.NewRecurringWorker(store.Store, processor, worker.RecurringWorkerConfig{
		Interval: cfg.RecurringInterval,
		CatchUp:  cfg.RecurringCatchUp,
	})

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"catch_up", cfg.RecurringCatchUp,
		"backend", cfg.DataBackend)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := w.Stop(ctx); err != nil {
			logger.Warn("Recurring worker stop error", "error", err)
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

	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start recurring worker", "error", err)
		return
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}
