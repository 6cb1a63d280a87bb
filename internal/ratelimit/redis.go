package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically increments the window counter and stamps the
// window TTL on first hit.
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = window length in milliseconds
// Returns: [count, 1=allowed/0=denied, remaining_ttl_ms]
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local count = redis.call('INCR', key)
if count == 1 then
    redis.call('PEXPIRE', key, window_ms)
end

local ttl = redis.call('PTTL', key)
if ttl < 0 then
    redis.call('PEXPIRE', key, window_ms)
    ttl = window_ms
end

if count > limit then
    return {count, 0, ttl}
end
return {count, 1, ttl}
`)

// RedisStore shares fixed windows across replicas. Redis errors fail open:
// losing rate limiting briefly is preferable to refusing all traffic.
type RedisStore struct {
	rdb       *redis.Client
	keyPrefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: "enhance:rl"}
}

func (s *RedisStore) Check(ctx context.Context, scope, key string, limit int64, window time.Duration) (Result, error) {
	now := time.Now()
	if s.rdb == nil {
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}, nil
	}

	redisKey := fmt.Sprintf("%s:%s:%s", s.keyPrefix, scope, key)
	raw, err := fixedWindowScript.Run(ctx, s.rdb, []string{redisKey},
		limit, window.Milliseconds(),
	).Int64Slice()
	if err != nil || len(raw) != 3 {
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}, nil
	}

	count, allowed, ttlMs := raw[0], raw[1] == 1, raw[2]
	resetAt := now.Add(time.Duration(ttlMs) * time.Millisecond)

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	res := Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}
	if !allowed {
		res.RetryAfterSeconds = retryAfterSeconds(resetAt, now)
	}
	return res, nil
}
