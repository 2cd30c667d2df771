package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupStore debounces repeated register-number submissions across API
// instances using SET NX with a TTL.
type RedisDedupStore struct {
	client *redis.Client
	prefix string
}

// NewRedisDedupStore constructs the redis-backed store.
func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{client: client, prefix: "attendance:dedup:"}
}

// Reserve claims the key for the window. It returns false when the key was
// already claimed, meaning the submission is a duplicate.
func (s *RedisDedupStore) Reserve(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup reserve: %w", err)
	}
	return ok, nil
}

// MemoryDedupStore is the single-process fallback when redis is disabled.
// Expired entries are purged on each reservation.
type MemoryDedupStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryDedupStore constructs the in-memory store.
func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{entries: make(map[string]time.Time), now: time.Now}
}

// Reserve claims the key for the window.
func (s *MemoryDedupStore) Reserve(_ context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, k)
		}
	}

	if expiry, ok := s.entries[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.entries[key] = now.Add(window)
	return true, nil
}
