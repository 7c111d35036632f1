package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisLimiterClient struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	count      map[string]int64
	deleted    []string
	err        error
}

func newMockRedisLimiterClient() *mockRedisLimiterClient {
	return &mockRedisLimiterClient{count: make(map[string]int64)}
}

func (m *mockRedisLimiterClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	m.count[keys[0]]++
	cmd.SetVal(m.count[keys[0]])
	return cmd
}

func (m *mockRedisLimiterClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	n, ok := m.count[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(fmt.Sprint(n))
	return cmd
}

func (m *mockRedisLimiterClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	m.deleted = append(m.deleted, keys...)
	for _, k := range keys {
		delete(m.count, k)
	}
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestLoginRateLimiter_Memory(t *testing.T) {
	l := NewLoginRateLimiter(time.Minute, 2)
	if !l.Allow("someone1") || !l.Allow("someone1") {
		t.Fatalf("checking must not consume the budget")
	}
	l.Fail("someone1")
	l.Fail(" SomeOne1 ")
	if l.Allow("someone1") {
		t.Fatalf("expected throttle after two failures")
	}
	if !l.Allow("another-user") {
		t.Fatalf("expected other keys to be unaffected")
	}
	l.Reset("SOMEONE1")
	if !l.Allow("someone1") {
		t.Fatalf("expected reset to clear failures")
	}
}

func TestLoginRateLimiter_MemoryWindowExpires(t *testing.T) {
	l := NewLoginRateLimiter(time.Minute, 1).(*loginRateLimiter)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Fail("someone1")
	if l.Allow("someone1") {
		t.Fatalf("expected throttle inside the window")
	}
	now = now.Add(61 * time.Second)
	if !l.Allow("someone1") {
		t.Fatalf("expected failures outside the window to be dropped")
	}
}

func TestRedisLoginRateLimiter(t *testing.T) {
	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisLoginRateLimiter
		if !l.Allow("someone1") {
			t.Fatalf("expected fail-open for nil limiter")
		}
		l.Fail("someone1")
		l.Reset("someone1")
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := NewRedisLoginRateLimiter(newMockRedisLimiterClient(), time.Minute, 3)
		if l.Allow("   ") {
			t.Fatalf("expected empty key to be rejected")
		}
	})

	t.Run("fail increments with ttl", func(t *testing.T) {
		mock := newMockRedisLimiterClient()
		l := NewRedisLoginRateLimiter(mock, 2*time.Minute, 3)
		l.Fail(" SomeOne1 ")
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "login:rl:someone1" {
			t.Fatalf("unexpected key normalization, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
			t.Fatalf("expected TTL seconds=120, got %+v", mock.lastArgs)
		}
		if mock.lastScript != redisLoginFailScript {
			t.Fatalf("expected script to match")
		}
	})

	t.Run("deny at max failures then reset", func(t *testing.T) {
		mock := newMockRedisLimiterClient()
		l := NewRedisLoginRateLimiter(mock, time.Minute, 3)
		if !l.Allow("someone1") {
			t.Fatalf("expected allow with no failures")
		}
		for i := 0; i < 3; i++ {
			l.Fail("someone1")
		}
		if l.Allow("someone1") {
			t.Fatalf("expected deny after max failures")
		}
		l.Reset("someone1")
		if len(mock.deleted) != 1 || mock.deleted[0] != "login:rl:someone1" {
			t.Fatalf("expected DEL on reset, got %+v", mock.deleted)
		}
		if !l.Allow("someone1") {
			t.Fatalf("expected allow after reset")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		mock := newMockRedisLimiterClient()
		mock.err = errors.New("redis down")
		l := NewRedisLoginRateLimiter(mock, time.Minute, 3)
		if !l.Allow("someone1") {
			t.Fatalf("expected fail-open on redis errors")
		}
	})
}
