package publisher

import (
	"context"

	"github.com/postpilot-io/postpilot/pkg/types"
)

// Result carries the externally visible outcome of a publish.
type Result struct {
	// PlatformPostID is the identifier assigned by the platform,
	// e.g. a Facebook "{page-id}_{post-id}" pair.
	PlatformPostID string `json:"platform_post_id"`
}

// Publisher performs the actual side effect for one scheduled post. It
// may run its own nested retries against the platform transport; the
// scheduler treats a Publisher call as one opaque attempt.
type Publisher interface {
	// Publish pushes the post to its platform
	Publish(ctx context.Context, post *types.ScheduledPost) (*Result, error)

	// Platform returns the platform this publisher serves
	Platform() string

	// Description returns a human-readable description of the publisher
	Description() string
}
