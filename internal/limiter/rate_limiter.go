package limiter

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter bounds the outbound call rate per key. Publishers key it
// by page ID to respect platform API budgets; the HTTP layer keys it
// by client.
type RateLimiter interface {
	// Allow reports whether a call for the given key may proceed now
	Allow(ctx context.Context, key string) (bool, error)

	// SetLimit overrides the rate limit for a key
	SetLimit(ctx context.Context, key string, limit float64, burst int) error
}

// LocalRateLimiter implements an in-memory token bucket per key
type LocalRateLimiter struct {
	mu           sync.Mutex
	limits       map[string]float64 // tokens per second
	bursts       map[string]int
	lastRefill   map[string]time.Time
	tokenBuckets map[string]float64
	defaultLimit float64
	defaultBurst int
}

// NewLocalRateLimiter creates a new in-memory rate limiter
func NewLocalRateLimiter(defaultLimit float64, defaultBurst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		limits:       make(map[string]float64),
		bursts:       make(map[string]int),
		lastRefill:   make(map[string]time.Time),
		tokenBuckets: make(map[string]float64),
		defaultLimit: defaultLimit,
		defaultBurst: defaultBurst,
	}
}

// Allow takes a token for key if one is available
func (l *LocalRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[key]
	if !ok {
		limit = l.defaultLimit
		l.limits[key] = limit
	}

	burst, ok := l.bursts[key]
	if !ok {
		burst = l.defaultBurst
		l.bursts[key] = burst
	}

	last, ok := l.lastRefill[key]
	if !ok {
		last = time.Now().Add(-24 * time.Hour) // start with a full bucket
		l.lastRefill[key] = last
	}

	tokens, ok := l.tokenBuckets[key]
	if !ok {
		tokens = float64(burst)
		l.tokenBuckets[key] = tokens
	}

	now := time.Now()
	refill := now.Sub(last).Seconds() * limit
	newTokens := tokens + refill
	if newTokens > float64(burst) {
		newTokens = float64(burst)
	}

	if newTokens < 1 {
		l.tokenBuckets[key] = newTokens
		l.lastRefill[key] = now
		return false, nil
	}

	newTokens--
	l.tokenBuckets[key] = newTokens
	l.lastRefill[key] = now

	return true, nil
}

// SetLimit updates the rate limit for a key
func (l *LocalRateLimiter) SetLimit(ctx context.Context, key string, limit float64, burst int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limits[key] = limit
	l.bursts[key] = burst
	return nil
}

// RedisRateLimiter implements a distributed token bucket using Redis,
// shared across server and scheduler processes.
type RedisRateLimiter struct {
	client       redis.Cmdable
	prefix       string
	defaultLimit float64
	defaultBurst int
}

// NewRedisRateLimiter creates a new Redis-backed rate limiter
func NewRedisRateLimiter(client redis.Cmdable, prefix string, defaultLimit float64, defaultBurst int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:       client,
		prefix:       prefix,
		defaultLimit: defaultLimit,
		defaultBurst: defaultBurst,
	}
}

// Allow takes a token from the Redis-side bucket for key
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	limitsKey := fmt.Sprintf("%s:limits:%s", r.prefix, key)
	tokensKey := fmt.Sprintf("%s:tokens:%s", r.prefix, key)

	pipe := r.client.Pipeline()
	limitCmd := pipe.HGet(ctx, limitsKey, "limit")
	burstCmd := pipe.HGet(ctx, limitsKey, "burst")
	lastRefillCmd := pipe.HGet(ctx, limitsKey, "last_refill")
	currentTokensCmd := pipe.Get(ctx, tokensKey)
	_, _ = pipe.Exec(ctx) // missing keys fall back to defaults below

	limit := r.defaultLimit
	burst := r.defaultBurst
	var lastRefill time.Time
	currentTokens := float64(burst)

	if limitVal, err := limitCmd.Result(); err == nil {
		if l, err := strconv.ParseFloat(limitVal, 64); err == nil {
			limit = l
		}
	}

	if burstVal, err := burstCmd.Result(); err == nil {
		if b, err := strconv.Atoi(burstVal); err == nil {
			burst = b
		}
	}

	if lastRefillVal, err := lastRefillCmd.Result(); err == nil {
		if t, err := time.Parse(time.RFC3339, lastRefillVal); err == nil {
			lastRefill = t
		}
	} else {
		lastRefill = time.Now().Add(-24 * time.Hour) // start with a full bucket
	}

	if tokensVal, err := currentTokensCmd.Result(); err == nil {
		if t, err := strconv.ParseFloat(tokensVal, 64); err == nil {
			currentTokens = t
		}
	}

	now := time.Now()
	refill := now.Sub(lastRefill).Seconds() * limit
	newTokens := currentTokens + refill
	if newTokens > float64(burst) {
		newTokens = float64(burst)
	}

	if newTokens < 1 {
		return false, nil
	}

	newTokens--
	pipe = r.client.Pipeline()
	pipe.Set(ctx, tokensKey, fmt.Sprintf("%.6f", newTokens), 0)
	pipe.HSet(ctx, limitsKey, "last_refill", now.Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to update rate limit tokens: %w", err)
	}

	return true, nil
}

// SetLimit updates the rate limit for a key
func (r *RedisRateLimiter) SetLimit(ctx context.Context, key string, limit float64, burst int) error {
	limitsKey := fmt.Sprintf("%s:limits:%s", r.prefix, key)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, limitsKey, map[string]interface{}{
		"limit": fmt.Sprintf("%.6f", limit),
		"burst": fmt.Sprintf("%d", burst),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set rate limit: %w", err)
	}

	return nil
}
