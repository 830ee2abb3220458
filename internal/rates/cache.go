package rates

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kantor-dev/kantor-backend/internal/domain"
)

// Provider fetches a rate table from the upstream source.
type Provider interface {
	FetchTable(ctx context.Context, key string) (*domain.RateSnapshot, error)
}

type cacheEntry struct {
	snapshot  *domain.RateSnapshot
	expiresAt time.Time
}

// Cache is a TTL cache of rate snapshots keyed by calendar date or "latest".
// Concurrent misses for the same key coalesce into a single upstream fetch,
// so every caller observes the same snapshot. Expiry is checked on read;
// failed fetches are never cached.
type Cache struct {
	provider Provider
	ttl      time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	flight singleflight.Group
	now    func() time.Time
}

func NewCache(provider Provider, ttl time.Duration) *Cache {
	return &Cache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]cacheEntry),
		now:      time.Now,
	}
}

func (c *Cache) Get(ctx context.Context, key string) (*domain.RateSnapshot, error) {
	if snap := c.lookup(key); snap != nil {
		return snap, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// A coalesced caller may arrive just after the winner stored the entry.
		if snap := c.lookup(key); snap != nil {
			return snap, nil
		}

		snap, err := c.provider.FetchTable(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("fetch %q: %w: %w", key, domain.ErrRateUnavailable, err)
		}

		c.store(key, snap)
		return snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return v.(*domain.RateSnapshot), nil
}

func (c *Cache) lookup(key string) *domain.RateSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil
	}
	return e.snapshot
}

func (c *Cache) store(key string, snap *domain.RateSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{snapshot: snap, expiresAt: c.now().Add(c.ttl)}
}
