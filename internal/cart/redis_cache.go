package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisCacheTTL = 15 * time.Minute

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(sessionID string) string
}

// RedisCache is the shared cart tier used when several API replicas run.
type RedisCache struct {
	store   redisStore
	baseTTL time.Duration
}

func NewRedisCache(store redisStore, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = DefaultRedisCacheTTL
	}
	return &RedisCache{store: store, baseTTL: baseTTL}
}

func (r *RedisCache) Get(ctx context.Context, sessionID string) (*View, error) {
	data, err := r.store.Get(ctx, r.store.CartKey(sessionID))
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var view View
	if err := json.Unmarshal([]byte(data), &view); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &view, nil
}

func (r *RedisCache) Set(ctx context.Context, sessionID string, view *View) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.store.Set(ctx, r.store.CartKey(sessionID), string(payload), r.baseTTL+jitter); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, sessionID string) error {
	if err := r.store.Del(ctx, r.store.CartKey(sessionID)); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
