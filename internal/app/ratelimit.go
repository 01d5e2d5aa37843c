package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var intakeRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimiter throttles intake submissions per client. A nil limiter, or any
// limiter with limit <= 0, imposes no limit.
type RateLimiter interface {
	// Consume counts one request for subject within a fixed window and
	// returns the running count plus the retry-after hint in seconds once
	// the window is exhausted.
	Consume(ctx context.Context, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RedisRateLimiter implements distributed fixed-window rate limiting.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "tradeseal:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: strings.TrimSuffix(trimmed, ":")}
}

func (r *RedisRateLimiter) Consume(ctx context.Context, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:intake:%s", r.prefix, subject)
	rawResult, err := intakeRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(count), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	return int(count), int(math.Ceil(float64(ttlMs) / 1000.0)), nil
}
