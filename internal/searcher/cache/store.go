package cache

import (
	"context"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	pkgredis "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/redis"
)

// MemoryStore is a size-bounded in-process LRU store.
type MemoryStore struct {
	entries *lru.Cache[string, []byte]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{entries: entries}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, ok := s.entries.Get(key)
	return data, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.entries.Add(key, slices.Clone(value))
	return nil
}

func (s *MemoryStore) Purge(context.Context) (int64, error) {
	n := int64(s.entries.Len())
	s.entries.Purge()
	return n, nil
}

func (s *MemoryStore) Name() string { return "memory" }

// RedisStore keeps entries in Redis under keyPrefix with a fixed TTL.
type RedisStore struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewRedisStore(client *pkgredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.client.GetBytes(ctx, key)
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, s.ttl)
}

func (s *RedisStore) Purge(ctx context.Context) (int64, error) {
	return s.client.FlushByPattern(ctx, keyPrefix+"*")
}

func (s *RedisStore) Name() string { return "redis" }
