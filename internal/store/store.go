package store

import (
	"context"
	"time"

	"github.com/postpilot-io/postpilot/pkg/types"
)

// Store is the durable persistence layer for scheduled posts. The
// scheduler is its only writer; upstream producers create records and
// external reporting surfaces read them.
type Store interface {
	// Create persists a new scheduled post
	Create(ctx context.Context, post *types.ScheduledPost) error

	// FindDue returns up to limit eligible posts ordered by their
	// scheduled time, earliest first
	FindDue(ctx context.Context, now time.Time, limit int) ([]*types.ScheduledPost, error)

	// Save atomically upserts one post's full current state
	Save(ctx context.Context, post *types.ScheduledPost) error

	// Get retrieves a post by ID
	Get(ctx context.Context, id string) (*types.ScheduledPost, error)

	// List returns recent posts, optionally filtered by status
	List(ctx context.Context, status types.PostStatus, limit int) ([]*types.ScheduledPost, error)

	// Requeue resets a terminally failed or parked processing post for
	// another round of publish attempts
	Requeue(ctx context.Context, id string) error

	// Health checks if the store is reachable
	Health(ctx context.Context) error

	// Close closes the store connection
	Close() error
}

type StoreStats struct {
	DueBacklog     int `json:"due_backlog"`
	TotalScheduled int `json:"total_scheduled"`
	TotalPublished int `json:"total_published"`
	TotalFailed    int `json:"total_failed"`
	TotalRequeued  int `json:"total_requeued"`
}

// eligible implements the selection predicate: a post may be picked up
// when it is due and either freshly pending or failed with retry
// attempts remaining.
func eligible(post *types.ScheduledPost, now time.Time, maxRetries int) bool {
	if !post.Due(now) {
		return false
	}
	switch post.Status {
	case types.StatusPending:
		return true
	case types.StatusFailed:
		return post.Retry.RetryCount < maxRetries
	default:
		return false
	}
}

// requeueable reports whether an operator may reset the post for
// another round of attempts: terminally failed posts, and posts left
// parked in processing by a scheduler that died mid-attempt. Selection
// skips processing posts, so without requeue a parked post would hold
// its due-index slot forever.
func requeueable(post *types.ScheduledPost) bool {
	switch post.Status {
	case types.StatusFailed, types.StatusProcessing:
		return true
	default:
		return false
	}
}

// terminal reports whether a post can never be selected again and may
// be dropped from the due index.
func terminal(post *types.ScheduledPost, maxRetries int) bool {
	switch post.Status {
	case types.StatusPublished:
		return true
	case types.StatusFailed:
		return post.Retry.RetryCount >= maxRetries
	default:
		return false
	}
}
