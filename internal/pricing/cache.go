package pricing

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache holds decoded packs by id. Packs are immutable once written, so
// cached entries never need invalidation, only expiry; a cache miss is
// always safe to answer from the backing store.
type Cache interface {
	Get(ctx context.Context, id string) (*Pack, bool)
	Set(ctx context.Context, pack *Pack, ttl time.Duration)
}

// memoryCache keeps packs in process. No serialization: callers receive the
// shared *Pack, which is sound because packs are never mutated after Put.
type memoryCache struct {
	mu sync.Mutex
	m  map[string]memoryEntry
}

type memoryEntry struct {
	pack *Pack
	exp  time.Time
}

// NewMemoryCache creates a process-local TTL cache.
func NewMemoryCache() Cache { return &memoryCache{m: make(map[string]memoryEntry)} }

func (c *memoryCache) Get(ctx context.Context, id string) (*Pack, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[id]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.pack, true
}

func (c *memoryCache) Set(ctx context.Context, pack *Pack, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{pack: pack}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[pack.ID] = e
}

// redisCache shares packs across processes as JSON under "pricing:pack:<id>".
// Redis trouble degrades to cache misses; it never fails a read.
type redisCache struct{ r *redis.Client }

const redisOpTimeout = 500 * time.Millisecond

// NewAutoCache returns a Redis-backed cache when REDIS_ADDR is set and an
// in-memory cache otherwise.
func NewAutoCache() Cache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return NewRedisCache(redis.NewClient(&redis.Options{Addr: addr}))
	}
	return NewMemoryCache()
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) Cache { return &redisCache{r: client} }

func redisPackKey(id string) string { return "pricing:pack:" + id }

func (c *redisCache) Get(ctx context.Context, id string) (*Pack, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	b, err := c.r.Get(ctx, redisPackKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var pack Pack
	if err := json.Unmarshal(b, &pack); err != nil {
		log.Warn().Str("pack", id).Msg("discarding undecodable cached pack")
		return nil, false
	}
	return &pack, true
}

func (c *redisCache) Set(ctx context.Context, pack *Pack, ttl time.Duration) {
	b, err := json.Marshal(pack)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := c.r.Set(ctx, redisPackKey(pack.ID), b, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("pack", pack.ID).Msg("failed to cache pack")
	}
}

// CachedStore is a read-through cache in front of a PackStore. Misses and
// store errors are never cached.
type CachedStore struct {
	inner PackStore
	cache Cache
	ttl   time.Duration
}

// NewCachedStore wraps a store with a cache. ttl <= 0 means entries never
// expire, which is sound because packs are immutable.
func NewCachedStore(inner PackStore, cache Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, cache: cache, ttl: ttl}
}

func (s *CachedStore) Pack(ctx context.Context, id string) (*Pack, error) {
	if pack, ok := s.cache.Get(ctx, id); ok {
		return pack, nil
	}
	pack, err := s.inner.Pack(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, pack, s.ttl)
	return pack, nil
}
