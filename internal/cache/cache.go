// Package cache provides the response cache used by the DataForSEO client.
// The backend is chosen by configuration: redis, in-process memory, or off.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seoforge/orchestrator/internal/config"
)

// Store is a key-value store with per-entry TTL.
type Store interface {
	// Get returns the cached value and whether it was present and live.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// FromConfig builds the configured backend. An unknown backend is an error
// rather than a silent downgrade to uncached operation.
func FromConfig(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("cache: redis ping: %w", err)
		}
		return NewRedis(client), nil
	case "memory":
		return NewMemory(), nil
	case "off", "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}

// Disabled is the explicit no-cache backend. Every lookup misses.
type Disabled struct{}

func (Disabled) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Disabled) Set(context.Context, string, []byte, time.Duration) error { return nil }

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a mutex-protected in-process store. Expired entries are evicted
// lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// Redis stores entries in a shared redis instance, delegating expiry to
// redis TTLs.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}
