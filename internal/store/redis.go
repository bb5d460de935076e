package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/postpilot-io/postpilot/pkg/types"
)

const (
	postKeyPrefix = "post:"        //  Redis string per post, JSON encoded
	dueIndexKey   = "posts:due"    //  Redis sorted set, score = scheduled-for unix time
	allIndexKey   = "posts:all"    //  Redis sorted set, score = created-at unix time
	statsKey      = "posts:stats"  //  Redis hash storing counters
)

type RedisOptions struct {
	URL            string
	Password       string
	DB             int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	MaxRetries     int // selection predicate bound, not a Redis client setting
}

// RedisStore persists scheduled posts in Redis: one JSON record per
// post plus a due-time index driving FindDue.
type RedisStore struct {
	client redis.Cmdable
	opts   RedisOptions
}

func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.Password = opts.Password
	redisOpts.DB = opts.DB
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.CommandTimeout
	redisOpts.WriteTimeout = opts.CommandTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		opts:   opts,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used where several
// components share one connection pool.
func NewRedisStoreWithClient(client redis.Cmdable, opts RedisOptions) *RedisStore {
	return &RedisStore{
		client: client,
		opts:   opts,
	}
}

func (s *RedisStore) Create(ctx context.Context, post *types.ScheduledPost) error {
	if err := post.Validate(); err != nil {
		return fmt.Errorf("post validation failed: %w", err)
	}

	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, postKeyPrefix+post.ID, data, 0)
	pipe.ZAdd(ctx, dueIndexKey, &redis.Z{
		Score:  float64(post.ScheduledFor.Unix()),
		Member: post.ID,
	})
	pipe.ZAdd(ctx, allIndexKey, &redis.Z{
		Score:  float64(post.CreatedAt.Unix()),
		Member: post.ID,
	})
	pipe.HIncrBy(ctx, statsKey, "total_scheduled", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	return nil
}

func (s *RedisStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*types.ScheduledPost, error) {
	result := s.client.ZRangeByScore(ctx, dueIndexKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: int64(limit),
	})
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to query due posts: %w", err)
	}

	posts := make([]*types.ScheduledPost, 0, len(result.Val()))
	for _, id := range result.Val() {
		post, err := s.Get(ctx, id)
		if err != nil {
			// A dangling index entry must not poison the batch.
			continue
		}
		if eligible(post, now, s.opts.MaxRetries) {
			posts = append(posts, post)
		}
	}

	return posts, nil
}

func (s *RedisStore) Save(ctx context.Context, post *types.ScheduledPost) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, postKeyPrefix+post.ID, data, 0)

	if terminal(post, s.opts.MaxRetries) {
		pipe.ZRem(ctx, dueIndexKey, post.ID)
		switch post.Status {
		case types.StatusPublished:
			pipe.HIncrBy(ctx, statsKey, "total_published", 1)
		case types.StatusFailed:
			pipe.HIncrBy(ctx, statsKey, "total_failed", 1)
		}
	} else {
		// Keep the due index in step; the score is idempotent as the
		// scheduled time never changes on retry.
		pipe.ZAdd(ctx, dueIndexKey, &redis.Z{
			Score:  float64(post.ScheduledFor.Unix()),
			Member: post.ID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*types.ScheduledPost, error) {
	result := s.client.Get(ctx, postKeyPrefix+id)
	if err := result.Err(); err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("post %s not found", id)
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	var post types.ScheduledPost
	if err := json.Unmarshal([]byte(result.Val()), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	return &post, nil
}

func (s *RedisStore) List(ctx context.Context, status types.PostStatus, limit int) ([]*types.ScheduledPost, error) {
	result := s.client.ZRevRange(ctx, allIndexKey, 0, int64(limit*4))
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	posts := make([]*types.ScheduledPost, 0, limit)
	for _, id := range result.Val() {
		if len(posts) >= limit {
			break
		}
		post, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if status != "" && post.Status != status {
			continue
		}
		posts = append(posts, post)
	}

	return posts, nil
}

// Requeue resets a post back to pending with a clean retry slate:
// terminally failed posts, and posts parked in processing when a
// scheduler crashed between the claim and the outcome write. Operator
// initiated only.
func (s *RedisStore) Requeue(ctx context.Context, id string) error {
	post, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !requeueable(post) {
		return fmt.Errorf("post %s is %s, only failed or parked processing posts can be requeued", id, post.Status)
	}

	wasFailed := post.Status == types.StatusFailed
	post.Status = types.StatusPending
	post.Retry = types.RetryMetadata{}
	post.ErrorMessage = ""
	post.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, postKeyPrefix+post.ID, data, 0)
	pipe.ZAdd(ctx, dueIndexKey, &redis.Z{
		Score:  float64(post.ScheduledFor.Unix()),
		Member: post.ID,
	})
	pipe.HIncrBy(ctx, statsKey, "total_requeued", 1)
	if wasFailed {
		pipe.HIncrBy(ctx, statsKey, "total_failed", -1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue post: %w", err)
	}

	return nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Client exposes the underlying connection for components that share it,
// such as the Redis-backed rate limiter.
func (s *RedisStore) Client() redis.Cmdable {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if client, ok := s.client.(*redis.Client); ok {
		return client.Close()
	}
	return nil
}

// GetStats reports store counters plus the backlog of posts due at now.
// Callers supply now so the scheduler path keeps its injected clock.
func (s *RedisStore) GetStats(ctx context.Context, now time.Time) (*StoreStats, error) {
	pipe := s.client.Pipeline()

	backlogCmd := pipe.ZCount(ctx, dueIndexKey, "0", fmt.Sprintf("%d", now.Unix()))
	statsCmd := pipe.HGetAll(ctx, statsKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := &StoreStats{
		DueBacklog: int(backlogCmd.Val()),
	}

	if statsData := statsCmd.Val(); len(statsData) > 0 {
		if scheduled, exists := statsData["total_scheduled"]; exists {
			fmt.Sscanf(scheduled, "%d", &stats.TotalScheduled)
		}
		if published, exists := statsData["total_published"]; exists {
			fmt.Sscanf(published, "%d", &stats.TotalPublished)
		}
		if failed, exists := statsData["total_failed"]; exists {
			fmt.Sscanf(failed, "%d", &stats.TotalFailed)
		}
		if requeued, exists := statsData["total_requeued"]; exists {
			fmt.Sscanf(requeued, "%d", &stats.TotalRequeued)
		}
	}

	return stats, nil
}
