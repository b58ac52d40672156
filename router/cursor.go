package router

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CursorStore keeps the last processed version per consumer and key. Advance never moves
// a cursor backwards, so a redelivered older event cannot rewind it.
type CursorStore interface {
	Get(ctx context.Context, consumer, key string) (uint64, error)
	Advance(ctx context.Context, consumer, key string, value uint64) error
}

// MemoryCursorStore is an in-process CursorStore.
type MemoryCursorStore struct {
	mu      sync.RWMutex
	cursors map[string]map[string]uint64
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]map[string]uint64)}
}

func (s *MemoryCursorStore) Get(ctx context.Context, consumer, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursors[consumer][key], nil
}

func (s *MemoryCursorStore) Advance(ctx context.Context, consumer, key string, value uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cursors, ok := s.cursors[consumer]
	if !ok {
		cursors = make(map[string]uint64)
		s.cursors[consumer] = cursors
	}

	if value > cursors[key] {
		cursors[key] = value
	}

	return nil
}

// RedisCursorStore keeps one HASH per consumer, field = key.
type RedisCursorStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var redisAdvanceScript = redis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
if tonumber(ARGV[2]) > current then
  redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
  return 1
end
return 0
`)

func NewRedisCursorStore(rdb redis.UniversalClient, prefix string) *RedisCursorStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "nexus:cursor"
	}

	return &RedisCursorStore{rdb: rdb, prefix: prefix}
}

func (s *RedisCursorStore) Get(ctx context.Context, consumer, key string) (uint64, error) {
	value, err := s.rdb.HGet(ctx, s.prefix+":"+consumer, key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, storageUnavailable(err)
	}

	return value, nil
}

func (s *RedisCursorStore) Advance(ctx context.Context, consumer, key string, value uint64) error {
	if err := redisAdvanceScript.Run(ctx, s.rdb, []string{s.prefix + ":" + consumer}, key, value).Err(); err != nil {
		return storageUnavailable(err)
	}

	return nil
}

var (
	_ CursorStore = (*MemoryCursorStore)(nil)
	_ CursorStore = (*RedisCursorStore)(nil)
)
