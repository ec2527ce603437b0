package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"wealthywise/internal/backend"
	"wealthywise/internal/cli"
	apphttp "wealthywise/internal/http"
	"wealthywise/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	gin.SetMode(gin.ReleaseMode)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	opts := cli.ServiceOptions(cfg, logger, res.Publisher())
	settings, err := res.Store.LoadSettings(context.Background())
	if err != nil {
		logger.Error("Failed to load settings", log.FieldError, err)
		_ = res.Close()
		os.Exit(1)
	}
	opts.Settings = settings

	// A nil *amqp.Client must not become a non-nil interface.
	var events apphttp.ReconcilePublisher
	if res.Events != nil {
		events = res.Events
	}

	srv, err := apphttp.NewServer(apphttp.ConfigFrom(cfg), res.Store, opts, events)
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		_ = res.Close()
		os.Exit(1)
	}
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(context.Background(), logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting wealthywise server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Events != nil,
		"currency", settings.Currency)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
