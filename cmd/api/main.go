package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fitstreak/internal/api"
	"example.com/fitstreak/internal/auth"
	"example.com/fitstreak/internal/config"
	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/observability"
	"example.com/fitstreak/internal/outbox"
	"example.com/fitstreak/internal/persistence"
	httptransport "example.com/fitstreak/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(os.Stdout, "streak-api", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	var dispatcher *outbox.Dispatcher
	if backend.Outbox != nil && cfg.OutboxEnabled {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(backend.Outbox, producer, registry, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	} else {
		logger.Info("outbox dispatcher disabled", "driver", cfg.StoreDriver, "outbox_enabled", cfg.OutboxEnabled)
	}

	service := domain.NewService(backend.Store,
		domain.WithLocation(cfg.Location()),
		domain.WithRetry(cfg.WriteMaxAttempts, cfg.WriteRetryDelay),
		domain.WithMaxBackfillDays(cfg.MaxBackfillDays),
		domain.WithLogger(logger),
	)

	handler := api.NewHandler(service, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authCfg := auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		api.Chain(mux, authCfg, cfg.CORSOrigin, logger))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("streak api listening", "address", cfg.HTTPAddress, "driver", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			shutdownCh <- syscall.SIGTERM
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
