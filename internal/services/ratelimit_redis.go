package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter backed by shared Redis counters,
// for deployments running more than one warden instance behind a balancer.
// The window is pinned by the key's TTL: the first INCR sets the expiry and
// later hits, allowed or blocked, never extend it.
type RedisRateLimiter struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

type RedisLimiterOption func(*RedisRateLimiter)

func WithLimiterPrefix(prefix string) RedisLimiterOption {
	return func(l *RedisRateLimiter) { l.prefix = prefix }
}

func WithLimiterTimeout(d time.Duration) RedisLimiterOption {
	return func(l *RedisRateLimiter) { l.timeout = d }
}

func NewRedisRateLimiter(rdb *redis.Client, opts ...RedisLimiterOption) *RedisRateLimiter {
	l := &RedisRateLimiter{
		rdb:     rdb,
		prefix:  "warden:ratelimit",
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisRateLimiter) Check(identifier string, maxRequests int, window time.Duration) (RateLimitResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	key := l.prefix + ":" + identifier

	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit check for %q: %w", identifier, err)
	}

	remainingTTL := ttl.Val()
	if incr.Val() == 1 || remainingTTL < 0 {
		// First hit in the window, or a counter left without an expiry by an
		// earlier crash between INCR and PEXPIRE. Blocked or allowed, later
		// hits never extend the window.
		if err := l.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return RateLimitResult{}, fmt.Errorf("rate limit expiry for %q: %w", identifier, err)
		}
		remainingTTL = window
	}
	reset := time.Now().Add(remainingTTL)

	count := int(incr.Val())
	if count > maxRequests {
		return RateLimitResult{Allowed: false, Remaining: 0, ResetTime: reset}, nil
	}

	return RateLimitResult{Allowed: true, Remaining: maxRequests - count, ResetTime: reset}, nil
}
