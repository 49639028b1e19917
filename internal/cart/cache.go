package cart

import (
	"context"
	"errors"

	"go.uber.org/multierr"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores cart views by session id. Get returns ErrCacheMiss when absent.
type Cache interface {
	Get(ctx context.Context, sessionID string) (*View, error)
	Set(ctx context.Context, sessionID string, view *View) error
	Invalidate(ctx context.Context, sessionID string) error
}

type cacheWarner interface {
	RecordCacheError(ctx context.Context, operation string, err error)
}

// TieredCache reads the local LRU before the shared tier and back-fills the
// LRU on a shared hit. Shared tier failures are reported and swallowed.
type TieredCache struct {
	local  *LRUCache
	shared Cache
	warn   cacheWarner
}

func NewTieredCache(local *LRUCache, shared Cache, warn cacheWarner) *TieredCache {
	return &TieredCache{local: local, shared: shared, warn: warn}
}

func (t *TieredCache) Local() *LRUCache {
	return t.local
}

func (t *TieredCache) Get(ctx context.Context, sessionID string) (*View, error) {
	if view, err := t.local.Get(ctx, sessionID); err == nil {
		return view, nil
	}
	if t.shared == nil {
		return nil, ErrCacheMiss
	}
	view, err := t.shared.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			t.report(ctx, "cache.get", err)
		}
		return nil, ErrCacheMiss
	}
	_ = t.local.Set(ctx, sessionID, view)
	return view, nil
}

func (t *TieredCache) Set(ctx context.Context, sessionID string, view *View) error {
	_ = t.local.Set(ctx, sessionID, view)
	if t.shared != nil {
		if err := t.shared.Set(ctx, sessionID, view); err != nil {
			t.report(ctx, "cache.set", err)
		}
	}
	return nil
}

func (t *TieredCache) Invalidate(ctx context.Context, sessionID string) error {
	err := t.local.Invalidate(ctx, sessionID)
	if t.shared != nil {
		if sharedErr := t.shared.Invalidate(ctx, sessionID); sharedErr != nil {
			t.report(ctx, "cache.invalidate", sharedErr)
			err = multierr.Append(err, sharedErr)
		}
	}
	return err
}

func (t *TieredCache) report(ctx context.Context, op string, err error) {
	if t.warn != nil {
		t.warn.RecordCacheError(ctx, op, err)
	}
}
