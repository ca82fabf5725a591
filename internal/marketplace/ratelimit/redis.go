// Package ratelimit implements a fixed-window request limiter backed by
// Redis. A nil limiter or an unreachable Redis lets every request through.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

type RedisLimiter struct {
	client  redis.Scripter
	limit   int
	window  time.Duration
	prefix  string
	script  *redis.Script
	timeout time.Duration
	logger  *zap.Logger
}

func NewRedisLimiter(client redis.Scripter, limit int, window time.Duration, prefix string, logger *zap.Logger) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client:  client,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		script:  redis.NewScript(rateLimitScript),
		timeout: 250 * time.Millisecond,
		logger:  logger.Named("rate_limiter"),
	}
}

// Allow counts one hit for key and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	if l.limit <= 0 || l.window <= 0 || key == "" {
		return true
	}
	redisKey := key
	if l.prefix != "" {
		redisKey = l.prefix + ":" + key
	}
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{redisKey}, ttl, l.limit).Int64()
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request", zap.String("key", redisKey), zap.Error(err))
		return true
	}
	return allowed == 1
}
