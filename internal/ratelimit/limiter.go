// Package ratelimit throttles abuse-prone endpoints such as login and bank
// sync. Counters live in Redis when REDIS_URL is configured so that limits
// hold across replicas; otherwise an in-process token bucket is used.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "fintrek:ratelimit:"

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether one more request under key fits into limit
// requests per window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// New returns a Redis-backed limiter when redisURL is set and an in-memory
// one otherwise. The returned close func releases the Redis client.
func New(ctx context.Context, redisURL string, log *zap.SugaredLogger) (Limiter, func() error, error) {
	if redisURL == "" {
		log.Info("REDIS_URL not set, using in-memory rate limiter")
		return NewMemoryLimiter(), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	log.Infow("using redis rate limiter", "addr", opts.Addr)
	return NewRedisLimiter(client, keyPrefix), client.Close, nil
}
