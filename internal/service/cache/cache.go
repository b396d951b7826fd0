// Package cache keys institutional provider payloads on top of a byte
// store. Entries are written only by callers that fully decoded them.
package cache

import (
	"context"
	"time"

	"SignalScope/internal/service/metrics"
	pkgcache "SignalScope/pkg/cache"
)

const (
	responsePrefix = "provider:resp"
	marketsKey     = "provider:markets"
)

// ProviderCache stores raw provider responses per (data type, batch) and
// the provider market listing.
type ProviderCache struct {
	store       pkgcache.Service
	responseTTL time.Duration
	mappingTTL  time.Duration
}

func NewProviderCache(store pkgcache.Service, responseTTL, mappingTTL time.Duration) *ProviderCache {
	return &ProviderCache{store: store, responseTTL: responseTTL, mappingTTL: mappingTTL}
}

// ResponseKey identifies one batch request. The symbol order is part of
// the key since batches are built from a stable order.
func ResponseKey(dataType string, symbols []string) string {
	return pkgcache.GenerateKeyWithParams(responsePrefix, dataType, pkgcache.HashList(symbols))
}

// Response returns a cached batch payload. Store errors count as misses.
func (c *ProviderCache) Response(ctx context.Context, dataType string, symbols []string) ([]byte, bool) {
	return c.lookup(ctx, "response", ResponseKey(dataType, symbols))
}

// PutResponse commits a decoded batch payload.
func (c *ProviderCache) PutResponse(ctx context.Context, dataType string, symbols []string, body []byte) error {
	return c.store.Set(ctx, ResponseKey(dataType, symbols), body, c.responseTTL)
}

// Markets returns the cached provider market listing.
func (c *ProviderCache) Markets(ctx context.Context) ([]byte, bool) {
	return c.lookup(ctx, "markets", marketsKey)
}

// PutMarkets stores the market listing for the mapping TTL.
func (c *ProviderCache) PutMarkets(ctx context.Context, body []byte) error {
	return c.store.Set(ctx, marketsKey, body, c.mappingTTL)
}

func (c *ProviderCache) lookup(ctx context.Context, name, key string) ([]byte, bool) {
	b, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.CacheMiss(name)
		return nil, false
	}
	metrics.CacheHit(name)
	return b, true
}
