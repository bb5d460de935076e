package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/ai"
	"github.com/postpilot-io/postpilot/internal/backoff"
	"github.com/postpilot-io/postpilot/internal/clock"
	"github.com/postpilot-io/postpilot/internal/config"
	"github.com/postpilot-io/postpilot/internal/metrics"
	"github.com/postpilot-io/postpilot/internal/publisher"
	"github.com/postpilot-io/postpilot/internal/retry"
	"github.com/postpilot-io/postpilot/internal/server"
	"github.com/postpilot-io/postpilot/internal/store"
	"github.com/postpilot-io/postpilot/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting PostPilot API server",
		zap.String("version", "1.0.0"),
		zap.String("address", cfg.Server.Address()),
	)

	// Initialize the Redis post store
	postStore, err := store.NewRedisStore(store.RedisOptions{
		URL:            cfg.Redis.URL,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		ConnectTimeout: cfg.Redis.Timeout,
		CommandTimeout: cfg.Redis.Timeout,
		MaxRetries:     cfg.Scheduler.MaxRetries,
	})
	if err != nil {
		logger.Fatal("Failed to initialize Redis store", zap.Error(err))
	}
	defer postStore.Close()

	// Initialize tracing
	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    "postpilot-server",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	// AI content generator shares the retry runner used elsewhere
	runner := retry.NewRunner(
		backoff.NewPolicy(cfg.Scheduler.BaseDelay, cfg.Scheduler.MaxDelay),
		clock.System(),
		logger,
	)
	generator := ai.NewGenerator(ai.Options{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
		MaxAttempts: cfg.AI.MaxAttempts,
	}, runner, logger)

	// Platform registry validates schedule requests against known platforms
	registry := publisher.NewRegistry(logger)
	if err := registry.Register(publisher.NewDryRunPublisher(publisher.PlatformFacebook, logger)); err != nil {
		logger.Fatal("Failed to register publisher", zap.Error(err))
	}

	m := metrics.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.StartServer(cfg.Metrics.Address); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(cfg, postStore, generator, registry, tracer, m, logger)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error("Failed to shutdown server gracefully", zap.Error(err))
	}

	if cfg.Metrics.Enabled {
		if err := m.StopServer(ctx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	if err := tracer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown tracer", zap.Error(err))
	}

	logger.Info("Server shutdown complete")
}

// initLogger initializes the logger based on configuration
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapConfig.Build()
}
