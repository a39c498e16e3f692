package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/wager-server-go/internal/redis"
)

// rateLimitScript is a Lua script for sliding window rate limiting.
// Returns {allowed, remaining, resetAt}.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = now + window
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 10000)

return {1, limit - count - 1, now + window}
`)

// RateLimiter is a redis-backed sliding window limiter shared by every
// server instance.
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one hit for id under scope and reports whether it fits in
// limit hits per window. Redis failures deny the request.
func (rl *RateLimiter) Allow(
	ctx context.Context,
	scope, id string,
	limit int,
	window time.Duration,
) (allowed bool, remaining int, resetAt time.Time) {
	now := rl.now()
	key := redisclient.RateLimitKey(scope, id)

	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
	).Int64Slice()

	if err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("rate limit check failed, denying request")
		return false, 0, now.Add(window)
	}

	if len(result) != 3 {
		log.Warn().Str("key", key).Int("len", len(result)).Msg("unexpected rate limit result, denying request")
		return false, 0, now.Add(window)
	}

	return result[0] == 1, int(result[1]), time.UnixMilli(result[2])
}
