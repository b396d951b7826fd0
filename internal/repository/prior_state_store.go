package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalScope/internal/domain/models"
	pkgcache "SignalScope/pkg/cache"
)

// CachePriorStateStore implements PriorStateStore over a cache.Service, so
// the same code serves the in-memory and the Redis-backed deployments.
type CachePriorStateStore struct {
	store pkgcache.Service
	ttl   time.Duration
}

func NewCachePriorStateStore(store pkgcache.Service, ttl time.Duration) *CachePriorStateStore {
	return &CachePriorStateStore{store: store, ttl: ttl}
}

// PriorStateKey is the cache key of symbol's sticky state.
func PriorStateKey(symbol string) string {
	return pkgcache.GenerateKey("prior", models.CanonicalSymbol(symbol))
}

func (s *CachePriorStateStore) Load(ctx context.Context, symbol string) (*models.PriorState, error) {
	st, err := pkgcache.GetJSON[models.PriorState](ctx, s.store, PriorStateKey(symbol))
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load prior state %s: %w", symbol, err)
	}
	return &st, nil
}

func (s *CachePriorStateStore) Save(ctx context.Context, symbol string, state models.PriorState) error {
	if err := pkgcache.SetJSON(ctx, s.store, PriorStateKey(symbol), state, s.ttl); err != nil {
		return fmt.Errorf("save prior state %s: %w", symbol, err)
	}
	return nil
}
