package publisher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/pkg/types"
)

// Registry maps platform names to publishers.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	logger     *zap.Logger
}

// NewRegistry creates a new publisher registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		publishers: make(map[string]Publisher),
		logger:     logger,
	}
}

// Register adds a publisher to the registry
func (r *Registry) Register(pub Publisher) error {
	if pub == nil {
		return fmt.Errorf("publisher cannot be nil")
	}

	platform := pub.Platform()
	if platform == "" {
		return fmt.Errorf("publisher platform cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.publishers[platform]; exists {
		return fmt.Errorf("publisher for platform '%s' already exists", platform)
	}

	r.publishers[platform] = pub
	r.logger.Info("Registered publisher",
		zap.String("platform", platform),
		zap.String("description", pub.Description()),
	)

	return nil
}

// Get retrieves the publisher for the given platform
func (r *Registry) Get(platform string) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pub, exists := r.publishers[platform]
	if !exists {
		return nil, fmt.Errorf("no publisher registered for platform %s", platform)
	}

	return pub, nil
}

// Platforms returns all registered platform names
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]string, 0, len(r.publishers))
	for p := range r.publishers {
		platforms = append(platforms, p)
	}

	return platforms
}

// ListPublishers returns platform -> description for all publishers
func (r *Registry) ListPublishers() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	publishers := make(map[string]string)
	for p, pub := range r.publishers {
		publishers[p] = pub.Description()
	}
	return publishers
}

// Publish dispatches the post to the publisher registered for its
// platform, so a Registry can stand in wherever a single Publisher is
// expected.
func (r *Registry) Publish(ctx context.Context, post *types.ScheduledPost) (*Result, error) {
	pub, err := r.Get(post.Platform)
	if err != nil {
		return nil, err
	}
	return pub.Publish(ctx, post)
}

// Platform implements Publisher for dispatch use.
func (r *Registry) Platform() string {
	return "multi"
}

// Description implements Publisher for dispatch use.
func (r *Registry) Description() string {
	return "Dispatches posts to per-platform publishers"
}
