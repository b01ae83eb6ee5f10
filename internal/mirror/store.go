// Package mirror keeps a durable local copy of the collections for quick reads.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"vortexx/internal/config"
)

// Store is a durable key-value store holding JSON values.
type Store interface {
	// Get decodes the value at key into dest and reports whether it exists.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	// SetTTL is Set with an expiry. A non-positive ttl keeps the value forever.
	SetTTL(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Flush removes every key owned by the mirror.
	Flush(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores that keep expired values around until
// they are swept.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Open builds the store selected by cfg.MirrorDriver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.MirrorDriver) {
	case "redis":
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client), nil
	case "sqlite", "postgres":
		return OpenSQL(ctx, cfg.MirrorDriver, cfg.MirrorDSN)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("mirror: unknown driver %q", cfg.MirrorDriver)
}

// MemoryStore keeps encoded values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string, dest any) (bool, error) {
	s.mu.RLock()
	e, ok := s.values[key]
	s.mu.RUnlock()
	if !ok || e.expired(s.now()) {
		return false, nil
	}
	return true, json.Unmarshal(e.data, dest)
}

func (s *MemoryStore) Set(ctx context.Context, key string, v any) error {
	return s.SetTTL(ctx, key, v, 0)
}

func (s *MemoryStore) SetTTL(_ context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.values[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// DeleteExpired drops values whose ttl ran out at or before now.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.values {
		if e.expired(now) {
			delete(s.values, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Flush(context.Context) error {
	s.mu.Lock()
	s.values = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
