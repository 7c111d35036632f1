package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"localchat/internal/domain"
)

// HistoryStore guarda el historial append-only de cada conversación.
// Es caché de sesión, no almacenamiento durable.
type HistoryStore interface {
	Append(ctx context.Context, key string, msg domain.ChatMessage) error
	List(ctx context.Context, key string) ([]domain.ChatMessage, error)
	Clear(ctx context.Context, key string) error
}

// HistoryKey compone la clave de conversación con el dueño.
func HistoryKey(userID, conversationID string) string {
	return strings.TrimSpace(userID) + ":" + strings.TrimSpace(conversationID)
}

type memoryHistoryStore struct {
	mu    sync.RWMutex
	items map[string][]domain.ChatMessage
}

func NewMemoryHistoryStore() HistoryStore {
	return &memoryHistoryStore{
		items: make(map[string][]domain.ChatMessage),
	}
}

func (s *memoryHistoryStore) Append(_ context.Context, key string, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append(s.items[key], msg)
	return nil
}

func (s *memoryHistoryStore) List(_ context.Context, key string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.items[key]
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memoryHistoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

type redisListClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisHistoryStore struct {
	client redisListClient
	ttl    time.Duration
	prefix string
}

// NewRedisHistoryStore guarda cada conversación como una lista JSON con TTL.
func NewRedisHistoryStore(client redisListClient, ttl time.Duration) HistoryStore {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisHistoryStore{
		client: client,
		ttl:    ttl,
		prefix: "chat:history:",
	}
}

func (s *redisHistoryStore) Append(ctx context.Context, key string, msg domain.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal history message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := s.client.RPush(ctx, s.prefix+key, payload).Err(); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if err := s.client.Expire(ctx, s.prefix+key, s.ttl).Err(); err != nil {
		return fmt.Errorf("refresh history ttl: %w", err)
	}
	return nil
}

func (s *redisHistoryStore) List(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := s.client.LRange(ctx, s.prefix+key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal history message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *redisHistoryStore) Clear(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Del(ctx, s.prefix+key).Err()
}
