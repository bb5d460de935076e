package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/clock"
	"github.com/postpilot-io/postpilot/internal/metrics"
	"github.com/postpilot-io/postpilot/internal/store"
	"github.com/postpilot-io/postpilot/internal/tracing"
	"github.com/postpilot-io/postpilot/pkg/types"
)

const (
	DefaultCadence   = 5 * time.Minute
	DefaultBatchSize = 10
)

// Config holds configuration for the scheduler loop
type Config struct {
	Cadence         time.Duration
	BatchSize       int
	ShutdownTimeout time.Duration
}

// Loop polls the store on a fixed cadence and drives each due post
// through the processor sequentially. The ticker select and the batch
// run share one goroutine, so ticks cannot overlap.
type Loop struct {
	config    Config
	store     store.Store
	processor *Processor
	clock     clock.Clock
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLoop(cfg Config, st store.Store, processor *Processor, clk clock.Clock, m *metrics.Metrics, tracer *tracing.Tracer, logger *zap.Logger) *Loop {
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Loop{
		config:    cfg,
		store:     st,
		processor: processor,
		clock:     clk,
		metrics:   m,
		tracer:    tracer,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (l *Loop) Start() {
	l.logger.Info("Starting scheduler loop",
		zap.Duration("cadence", l.config.Cadence),
		zap.Int("batch_size", l.config.BatchSize),
	)

	l.wg.Add(1)
	go l.run()
}

func (l *Loop) run() {
	defer l.wg.Done()

	// First pass right away so a restart drains the backlog without
	// waiting a full cadence.
	if err := l.Tick(l.ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Error("Scheduler tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(l.config.Cadence)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			l.logger.Info("Scheduler loop stopping")
			return
		case <-ticker.C:
			if err := l.Tick(l.ctx); err != nil && !errors.Is(err, context.Canceled) {
				// Never fatal; the next tick simply tries again.
				l.logger.Error("Scheduler tick failed", zap.Error(err))
			}
		}
	}
}

// Stop cancels the loop and waits for any in-flight batch to finish.
func (l *Loop) Stop() error {
	l.cancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("Scheduler loop stopped")
		return nil
	case <-time.After(l.config.ShutdownTimeout):
		l.logger.Warn("Scheduler shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// Tick fetches one batch of due posts and processes them in order.
// Exported so operators and tests can drive a single pass.
func (l *Loop) Tick(ctx context.Context) error {
	ctx, span := l.tracer.StartSpan(ctx, "scheduler.tick")
	defer span.End()

	start := time.Now()
	defer func() {
		l.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	now := l.clock.Now()

	posts, err := l.store.FindDue(ctx, now, l.config.BatchSize)
	if err != nil {
		l.metrics.TickErrors.Inc()
		return fmt.Errorf("failed to fetch due posts: %w", err)
	}

	l.metrics.BatchSize.Observe(float64(len(posts)))
	l.updateBacklogGauge(ctx)
	if len(posts) == 0 {
		return nil
	}

	l.logger.Info("Processing due posts", zap.Int("count", len(posts)))

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.processPost(ctx, post)
	}

	return nil
}

// updateBacklogGauge refreshes the due-backlog gauge when the store can
// report statistics.
func (l *Loop) updateBacklogGauge(ctx context.Context) {
	provider, ok := l.store.(interface {
		GetStats(ctx context.Context, now time.Time) (*store.StoreStats, error)
	})
	if !ok {
		return
	}

	stats, err := provider.GetStats(ctx, l.clock.Now())
	if err != nil {
		l.logger.Debug("Failed to refresh backlog gauge", zap.Error(err))
		return
	}
	l.metrics.DueBacklog.Set(float64(stats.DueBacklog))
}

// processPost isolates one post's outcome so a bad item never aborts
// the rest of the batch.
func (l *Loop) processPost(ctx context.Context, post *types.ScheduledPost) {
	ctx, span := l.tracer.StartSpan(ctx, "scheduler.publish")
	defer span.End()

	attemptStart := time.Now()
	err := l.processor.Process(ctx, post)
	l.metrics.PublishDuration.WithLabelValues(post.Platform).Observe(time.Since(attemptStart).Seconds())

	if err == nil {
		l.metrics.PostsPublished.WithLabelValues(post.Platform).Inc()
		return
	}

	var pubErr *PublishError
	if errors.As(err, &pubErr) {
		if pubErr.Terminal {
			l.metrics.PostsFailed.WithLabelValues(post.Platform).Inc()
			l.logger.Error("Post terminally failed",
				zap.String("post_id", pubErr.PostID),
				zap.Int("retry_count", pubErr.RetryCount),
				zap.Error(pubErr.Err),
			)
		} else {
			l.metrics.PostsRetried.WithLabelValues(post.Platform).Inc()
			l.logger.Warn("Post failed, will retry",
				zap.String("post_id", pubErr.PostID),
				zap.Int("retry_count", pubErr.RetryCount),
				zap.Error(pubErr.Err),
			)
		}
		return
	}

	// Store-level failure: the post's durable state never advanced, so
	// the next cycle picks it up again.
	l.logger.Error("Failed to process post",
		zap.String("post_id", post.ID),
		zap.Error(err),
	)
}
