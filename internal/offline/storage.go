package offline

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Storage is the durable key-value store holding the serialized queue so it
// survives process restarts. The whole queue is one value per key.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
}

// RedisStorage persists queue state in Redis.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage creates Redis-backed storage.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	if client == nil {
		panic("offline: redis client required")
	}
	return &RedisStorage{client: client}
}

func (s *RedisStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("offline: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStorage) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("offline: set %s: %w", key, err)
	}
	return nil
}

// MemoryStorage is a map-backed Storage for tests and the memory backend.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage creates empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *MemoryStorage) SetItem(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

var _ Storage = (*RedisStorage)(nil)
var _ Storage = (*MemoryStorage)(nil)
