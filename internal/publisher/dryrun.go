package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/pkg/types"
)

// DryRunPublisher logs posts instead of publishing them. Used in
// development and as the default wiring when no page token is
// configured.
type DryRunPublisher struct {
	platform string
	logger   *zap.Logger
}

func NewDryRunPublisher(platform string, logger *zap.Logger) *DryRunPublisher {
	return &DryRunPublisher{
		platform: platform,
		logger:   logger,
	}
}

func (p *DryRunPublisher) Platform() string {
	return p.platform
}

func (p *DryRunPublisher) Description() string {
	return "Logs posts without publishing (dry run)"
}

func (p *DryRunPublisher) Publish(ctx context.Context, post *types.ScheduledPost) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("Dry-run publish",
		zap.String("post_id", post.ID),
		zap.String("page_id", post.PageID),
		zap.String("message", post.Message),
	)

	return &Result{
		PlatformPostID: fmt.Sprintf("%s_dryrun_%d", post.PageID, time.Now().UnixNano()),
	}, nil
}
