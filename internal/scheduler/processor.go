package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/backoff"
	"github.com/postpilot-io/postpilot/internal/clock"
	"github.com/postpilot-io/postpilot/internal/publisher"
	"github.com/postpilot-io/postpilot/internal/store"
	"github.com/postpilot-io/postpilot/pkg/types"
)

// DefaultMaxRetries bounds publish attempts per post.
const DefaultMaxRetries = 3

// PublishError reports one failed publish attempt upward for
// observability. The loop logs it and moves on; it never aborts a
// batch.
type PublishError struct {
	PostID     string
	RetryCount int
	Terminal   bool
	Err        error
}

func (e *PublishError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("post %s terminally failed after %d attempts: %v", e.PostID, e.RetryCount, e.Err)
	}
	return fmt.Sprintf("post %s failed attempt %d, will retry: %v", e.PostID, e.RetryCount, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Processor drives one post through a single publish attempt:
// claim, execute, classify, persist.
type Processor struct {
	store      store.Store
	executor   publisher.Publisher
	policy     *backoff.Policy
	clock      clock.Clock
	maxRetries int
	logger     *zap.Logger
}

func NewProcessor(st store.Store, executor publisher.Publisher, policy *backoff.Policy, clk clock.Clock, maxRetries int, logger *zap.Logger) *Processor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Processor{
		store:      st,
		executor:   executor,
		policy:     policy,
		clock:      clk,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Process runs one publish attempt for post. Returns nil on success, a
// *PublishError when the attempt failed but its new state was
// persisted, and a plain error when the store itself failed. In that
// case the post's durable state is unchanged and the next cycle
// re-attempts it.
func (p *Processor) Process(ctx context.Context, post *types.ScheduledPost) error {
	// Backoff for a retried post is applied lazily, at the start of
	// the next attempt rather than when the previous one failed.
	if post.Retry.RetryCount > 0 {
		delay := p.policy.Delay(post.Retry.RetryCount - 1)
		p.logger.Info("Backing off before retry attempt",
			zap.String("post_id", post.ID),
			zap.Int("retry_count", post.Retry.RetryCount),
			zap.Duration("delay", delay),
		)
		if err := p.clock.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("backoff interrupted for post %s: %w", post.ID, err)
		}
	}

	// Write-through claim: a crash mid-attempt leaves the post visibly
	// processing instead of silently stuck.
	post.MarkProcessing(p.clock.Now())
	if err := p.store.Save(ctx, post); err != nil {
		return fmt.Errorf("failed to claim post %s: %w", post.ID, err)
	}

	p.logger.Info("Publishing post",
		zap.String("post_id", post.ID),
		zap.String("platform", post.Platform),
		zap.String("page_id", post.PageID),
		zap.Int("attempt", post.Retry.RetryCount+1),
		zap.Int("max_retries", p.maxRetries),
	)

	result, execErr := p.executor.Publish(ctx, post)
	if execErr == nil {
		post.MarkPublished(result.PlatformPostID, p.clock.Now())
		if err := p.store.Save(ctx, post); err != nil {
			return fmt.Errorf("failed to persist published post %s: %w", post.ID, err)
		}

		p.logger.Info("Post published",
			zap.String("post_id", post.ID),
			zap.String("platform_post_id", result.PlatformPostID),
		)
		return nil
	}

	now := p.clock.Now()
	terminal := post.Retry.RetryCount+1 >= p.maxRetries
	if terminal {
		post.MarkFailed(execErr, now)
	} else {
		post.MarkRetry(execErr, now)
	}

	if err := p.store.Save(ctx, post); err != nil {
		return fmt.Errorf("failed to persist failed post %s: %w", post.ID, err)
	}

	return &PublishError{
		PostID:     post.ID,
		RetryCount: post.Retry.RetryCount,
		Terminal:   terminal,
		Err:        execErr,
	}
}
