package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLoginFailScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisLoginRateLimiter struct {
	client redisLimiterClient
	window time.Duration
	max    int
	prefix string
}

type redisLimiterClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

func NewRedisLoginRateLimiter(client redisLimiterClient, window time.Duration, max int) LoginRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisLoginRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "login:rl:",
	}
}

func (l *redisLoginRateLimiter) key(raw string) string {
	normalized := normalizeLoginKey(raw)
	if normalized == "" {
		return ""
	}
	return l.prefix + normalized
}

// Allow deja pasar el intento si Redis no responde; el login no depende de Redis.
func (l *redisLoginRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	k := l.key(key)
	if k == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// redis.Nil: sin fallos registrados.
	count, err := l.client.Get(ctx, k).Int()
	if err != nil {
		return true
	}
	return count < l.max
}

func (l *redisLoginRateLimiter) Fail(key string) {
	if l == nil || l.client == nil {
		return
	}
	k := l.key(key)
	if k == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	_ = l.client.Eval(ctx, redisLoginFailScript, []string{k}, seconds).Err()
}

func (l *redisLoginRateLimiter) Reset(key string) {
	if l == nil || l.client == nil {
		return
	}
	k := l.key(key)
	if k == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = l.client.Del(ctx, k).Err()
}
