package main

import (
	"context"
	"errors"
	"os"
	"time"

	"wealthywise/internal/backend"
	"wealthywise/internal/cli"
	"wealthywise/internal/log"
	"wealthywise/internal/services"
	"wealthywise/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting ledger-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger worker")
		os.Exit(1)
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger)
	factory.RequireEvents = true
	res, err := factory.CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}

	settings, err := res.Store.LoadSettings(context.Background())
	if err != nil {
		logger.Error("Failed to load settings", log.FieldError, err)
		_ = res.Close()
		os.Exit(1)
	}
	// The worker only reconciles; it never commits, so it publishes nothing.
	opts := cli.ServiceOptions(cfg, logger, nil)
	opts.Settings = settings

	reconciler := services.NewReconciler(res.Store, opts, cfg.ReconcileConcurrency)
	ledgerWorker := worker.NewLedgerWorker(reconciler)

	var sweeper *services.Sweeper
	if cfg.ReconcileInterval > 0 {
		sweeper = services.NewSweeper(reconciler, services.SweeperConfig{
			Interval: cfg.ReconcileInterval,
			Correct:  cfg.ReconcileCorrect,
		})
	} else {
		logger.Info("Periodic drift sweep disabled")
	}

	parent, stop := context.WithCancel(context.Background())
	defer stop()
	ctx, done := cli.GracefulShutdown(parent, logger, 30*time.Second, func(ctx context.Context) {
		if sweeper != nil {
			if err := sweeper.Stop(ctx); err != nil {
				logger.Error("Sweeper stop error", log.FieldError, err)
			}
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if sweeper != nil {
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("Failed to start drift sweeper", log.FieldError, err)
		}
	}

	go func() {
		err := res.Events.Consume(ctx, ledgerWorker.Handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
		stop()
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger worker stopped gracefully")
}
