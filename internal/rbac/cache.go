// Copyright 2026 The MarchProxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// CacheConfig holds permission cache tuning
type CacheConfig struct {
	// TTL bounds staleness from out-of-band data changes. Invalidation is
	// event-driven; the TTL is only a safety net.
	TTL time.Duration

	// MaxEntries caps the number of cached principals
	MaxEntries int
}

// DefaultCacheConfig returns the production defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 10000,
	}
}

// Cache memoizes Resolver output per principal. Concurrent misses for the
// same principal are collapsed into a single Resolver computation; misses
// for different principals proceed fully in parallel.
//
// Invalidation ordering: a generation counter per principal guarantees that
// a computation started before an Invalidate call can never be stored after
// it, so no check observes a value computed from state older than the
// writer's last completed mutation.
type Cache struct {
	resolver *Resolver
	entries  *expirable.LRU[string, *ResolvedPermissions]
	group    singleflight.Group

	mu        sync.Mutex
	gens      map[string]uint64
	globalGen uint64

	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewCache creates a permission cache backed by an expiring LRU.
func NewCache(resolver *Resolver, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	return &Cache{
		resolver: resolver,
		entries:  expirable.NewLRU[string, *ResolvedPermissions](cfg.MaxEntries, nil, cfg.TTL),
		gens:     make(map[string]uint64),
	}
}

// SetInstruments attaches hit/miss counters. Optional; the cache works
// without metrics.
func (c *Cache) SetInstruments(hits, misses metric.Int64Counter) {
	c.hits = hits
	c.misses = misses
}

// Get returns the cached resolved permissions for a principal, computing and
// storing them on miss. The returned value is shared with other readers and
// must be treated as read-only.
func (c *Cache) Get(ctx context.Context, principalID string) (*ResolvedPermissions, error) {
	if v, ok := c.entries.Get(principalID); ok {
		if c.hits != nil {
			c.hits.Add(ctx, 1)
		}
		return v, nil
	}

	if c.misses != nil {
		c.misses.Add(ctx, 1)
	}

	gen := c.generation(principalID)

	v, err, _ := c.group.Do(principalID, func() (any, error) {
		resolved, err := c.resolver.Resolve(ctx, principalID)
		if err != nil {
			return nil, err
		}
		// Store only if no invalidation raced this computation.
		if c.generation(principalID) == gen {
			c.entries.Add(principalID, resolved)
		}
		return resolved, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*ResolvedPermissions), nil
}

// Invalidate removes the cached entry for a principal immediately. Called
// after every assignment mutation affecting the principal.
func (c *Cache) Invalidate(principalID string) {
	c.mu.Lock()
	c.gens[principalID]++
	c.mu.Unlock()

	c.entries.Remove(principalID)
	c.group.Forget(principalID)
}

// InvalidateAll clears the whole cache. Used after role-permission-set edits
// that affect an unknown set of principals.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.globalGen++
	c.mu.Unlock()

	c.entries.Purge()
}

// Len returns the number of cached principals.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) generation(principalID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalGen + c.gens[principalID]
}
