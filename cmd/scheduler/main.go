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

	"github.com/postpilot-io/postpilot/internal/backoff"
	"github.com/postpilot-io/postpilot/internal/clock"
	"github.com/postpilot-io/postpilot/internal/config"
	"github.com/postpilot-io/postpilot/internal/limiter"
	"github.com/postpilot-io/postpilot/internal/metrics"
	"github.com/postpilot-io/postpilot/internal/publisher"
	"github.com/postpilot-io/postpilot/internal/retry"
	"github.com/postpilot-io/postpilot/internal/scheduler"
	"github.com/postpilot-io/postpilot/internal/store"
	"github.com/postpilot-io/postpilot/internal/tracing"
)

const connectAttempts = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting publish scheduler",
		zap.String("version", "1.0.0"),
		zap.Duration("cadence", cfg.Scheduler.Cadence),
		zap.Int("batch_size", cfg.Scheduler.BatchSize),
	)

	policy := backoff.NewPolicy(cfg.Scheduler.BaseDelay, cfg.Scheduler.MaxDelay)
	clk := clock.System()
	runner := retry.NewRunner(policy, clk, logger)

	// Redis may still be coming up alongside us, so the initial
	// connection goes through the same retry runner the publishers use.
	postStore, err := connectStore(cfg, runner, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis store", zap.Error(err))
	}
	defer postStore.Close()

	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    "postpilot-scheduler",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	m := metrics.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.StartServer(cfg.Metrics.Address); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	registry := publisher.NewRegistry(logger)
	if err := registerPublishers(cfg, postStore, runner, registry, logger); err != nil {
		logger.Fatal("Failed to register publishers", zap.Error(err))
	}
	logger.Info("Publishers ready", zap.Strings("platforms", registry.Platforms()))

	processor := scheduler.NewProcessor(postStore, registry, policy, clk, cfg.Scheduler.MaxRetries, logger)

	loop := scheduler.NewLoop(scheduler.Config{
		Cadence:         cfg.Scheduler.Cadence,
		BatchSize:       cfg.Scheduler.BatchSize,
		ShutdownTimeout: cfg.Scheduler.ShutdownTimeout,
	}, postStore, processor, clk, m, tracer, logger)

	loop.Start()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")

	if err := loop.Stop(); err != nil {
		logger.Error("Failed to shutdown scheduler gracefully", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.Metrics.Enabled {
		if err := m.StopServer(ctx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	if err := tracer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown tracer", zap.Error(err))
	}

	logger.Info("Scheduler shutdown complete")
}

// connectStore establishes the Redis connection, retrying transient
// failures with exponential backoff.
func connectStore(cfg *config.Config, runner *retry.Runner, logger *zap.Logger) (*store.RedisStore, error) {
	opts := store.RedisOptions{
		URL:            cfg.Redis.URL,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		ConnectTimeout: cfg.Redis.Timeout,
		CommandTimeout: cfg.Redis.Timeout,
		MaxRetries:     cfg.Scheduler.MaxRetries,
	}

	return retry.DoValue(context.Background(), runner, "redis connect", connectAttempts,
		func(ctx context.Context) (*store.RedisStore, error) {
			return store.NewRedisStore(opts)
		})
}

// registerPublishers wires up one publisher per supported platform. Without
// a Facebook access token the scheduler runs in dry-run mode, logging
// publishes instead of sending them.
func registerPublishers(cfg *config.Config, postStore *store.RedisStore, runner *retry.Runner, registry *publisher.Registry, logger *zap.Logger) error {
	if cfg.Facebook.AccessToken == "" {
		logger.Warn("No Facebook access token configured, running in dry-run mode")
		return registry.Register(publisher.NewDryRunPublisher(publisher.PlatformFacebook, logger))
	}

	pageLimiter := limiter.NewRedisRateLimiter(
		postStore.Client(),
		"publish_limit",
		cfg.Facebook.PublishRate,
		cfg.Facebook.PublishBurst,
	)

	fb := publisher.NewFacebookPublisher(publisher.FacebookOptions{
		BaseURL:     cfg.Facebook.GraphURL,
		APIVersion:  cfg.Facebook.APIVersion,
		AccessToken: cfg.Facebook.AccessToken,
		Timeout:     cfg.Facebook.Timeout,
		MaxAttempts: cfg.Facebook.MaxAttempts,
	}, runner, pageLimiter, logger)

	return registry.Register(fb)
}

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
