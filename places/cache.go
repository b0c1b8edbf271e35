package places

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"tripy/logger"
	"tripy/models"
)

// Cache is one tier of the resolved-place cache. Entries hold place data only,
// never anything trip-specific.
type Cache interface {
	Get(ctx context.Context, key string) (models.PlaceRef, bool)
	Set(ctx context.Context, key string, ref models.PlaceRef)
	Name() string
}

// Normalize folds case and width and collapses whitespace so equivalent
// queries share a cache key.
func Normalize(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// CacheKey hashes the normalized query and hint.
func CacheKey(query, hint string) string {
	sum := blake2b.Sum256([]byte(Normalize(query) + "\x00" + Normalize(hint)))
	return "place:" + hex.EncodeToString(sum[:16])
}

// LocalCache is the in-process tier. It refuses new keys once full and
// expired entries have been swept.
type LocalCache struct {
	items *gocache.Cache
	max   int
}

func NewLocalCache(ttl time.Duration, maxEntries int) *LocalCache {
	return &LocalCache{items: gocache.New(ttl, 2*ttl), max: maxEntries}
}

func (l *LocalCache) Name() string { return "local" }

func (l *LocalCache) Get(_ context.Context, key string) (models.PlaceRef, bool) {
	v, ok := l.items.Get(key)
	if !ok {
		return models.PlaceRef{}, false
	}
	return v.(models.PlaceRef), true
}

func (l *LocalCache) Set(_ context.Context, key string, ref models.PlaceRef) {
	if l.max > 0 && l.items.ItemCount() >= l.max {
		l.items.DeleteExpired()
		if l.items.ItemCount() >= l.max {
			return
		}
	}
	l.items.SetDefault(key, ref)
}

func (l *LocalCache) Len() int { return l.items.ItemCount() }

// RedisCache is the shared tier, so replicas reuse each other's lookups.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Name() string { return "redis" }

func (r *RedisCache) Get(ctx context.Context, key string) (models.PlaceRef, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Get().Warn("place cache read failed", zap.String("key", key), zap.Error(err))
		}
		return models.PlaceRef{}, false
	}
	var ref models.PlaceRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return models.PlaceRef{}, false
	}
	return ref, true
}

func (r *RedisCache) Set(ctx context.Context, key string, ref models.PlaceRef) {
	data, err := json.Marshal(ref)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		logger.Get().Warn("place cache write failed", zap.String("key", key), zap.Error(err))
	}
}
