package main

import (
	"context"
	"errors"
	"os"
	"time"

	"tresorerie/internal/amqp"
	"tresorerie/internal/cli"
	ports "tresorerie/internal/sheets"
	gsheet "tresorerie/internal/sheets/google"
	mem "tresorerie/internal/sheets/memory"
	"tresorerie/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, "sheets-exporter")

	if err := cfg.ValidateExporter(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting sheets-exporter")

	var writer ports.TransactionWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = mem.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set - exporting to memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	exporter := worker.NewExportWorker(writer)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", "error", err)
		}
	})

	logger.Info("Consuming transaction events", "queue", cfg.AMQPQueue)
	if err := amqpClient.ConsumeTransactionEvents(ctx, exporter.HandleTransactionEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", "error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Sheets-exporter shutdown complete")
}
