package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"localchat/internal/domain"
)

type mockRedisListClient struct {
	lists     map[string][]string
	lastTTL   time.Duration
	pushErr   error
	expireKey string
}

func newMockRedisListClient() *mockRedisListClient {
	return &mockRedisListClient{lists: make(map[string][]string)}
}

func (m *mockRedisListClient) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if m.pushErr != nil {
		cmd.SetErr(m.pushErr)
		return cmd
	}
	for _, v := range values {
		switch val := v.(type) {
		case []byte:
			m.lists[key] = append(m.lists[key], string(val))
		case string:
			m.lists[key] = append(m.lists[key], val)
		}
	}
	cmd.SetVal(int64(len(m.lists[key])))
	return cmd
}

func (m *mockRedisListClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireKey = key
	m.lastTTL = expiration
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (m *mockRedisListClient) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(append([]string(nil), m.lists[key]...))
	return cmd
}

func (m *mockRedisListClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	for _, k := range keys {
		delete(m.lists, k)
	}
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestMemoryHistoryStore_AppendOnly(t *testing.T) {
	store := NewMemoryHistoryStore()
	ctx := context.Background()
	key := HistoryKey("u1", "c1")

	_ = store.Append(ctx, key, domain.ChatMessage{Role: domain.RoleUser, Content: "hi"})
	_ = store.Append(ctx, key, domain.ChatMessage{Role: domain.RoleAssistant, Content: "hello"})

	msgs, err := store.List(ctx, key)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hi" || msgs[1].Content != "hello" {
		t.Fatalf("unexpected history %+v", msgs)
	}

	msgs[0].Content = "mutated"
	again, _ := store.List(ctx, key)
	if again[0].Content != "hi" {
		t.Fatal("list must return a copy")
	}

	other, _ := store.List(ctx, HistoryKey("u2", "c1"))
	if len(other) != 0 {
		t.Fatal("history must be scoped per user")
	}

	_ = store.Clear(ctx, key)
	if msgs, _ := store.List(ctx, key); len(msgs) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(msgs))
	}
}

func TestRedisHistoryStore_RoundTrip(t *testing.T) {
	client := newMockRedisListClient()
	store := NewRedisHistoryStore(client, time.Hour)
	ctx := context.Background()

	msg := domain.ChatMessage{Role: domain.RoleAssistant, Content: "Hel", Interrupted: true, Timestamp: time.Unix(10, 0).UTC()}
	if err := store.Append(ctx, "u1:c1", msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if client.expireKey != "chat:history:u1:c1" || client.lastTTL != time.Hour {
		t.Fatalf("ttl not refreshed: key=%s ttl=%v", client.expireKey, client.lastTTL)
	}

	msgs, err := store.List(ctx, "u1:c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "Hel" || !msgs[0].Interrupted || !msgs[0].Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("unexpected history %+v", msgs)
	}

	if err := store.Clear(ctx, "u1:c1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(client.lists) != 0 {
		t.Fatal("expected list deleted")
	}
}

func TestRedisHistoryStore_AppendError(t *testing.T) {
	client := newMockRedisListClient()
	client.pushErr = errors.New("redis down")
	store := NewRedisHistoryStore(client, 0)

	if err := store.Append(context.Background(), "k", domain.ChatMessage{}); err == nil {
		t.Fatal("expected error when redis fails")
	}
}

func TestNewRedisHistoryStore_NilClient(t *testing.T) {
	if NewRedisHistoryStore(nil, time.Hour) != nil {
		t.Fatal("expected nil store for nil client")
	}
}
