// Package cache is the process-wide TTL cache in front of discovery and feed
// fetches
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedscout_cache_lookups_total",
	Help: "Cache lookups by result",
}, []string{"result"})

type entry struct {
	value   interface{}
	expires time.Time
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the live value for key. Expired entries are dropped.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		lookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	if !c.now().Before(e.expires) {
		c.mu.Lock()
		// Another writer may have refreshed it in between
		if current, ok := c.entries[key]; ok && !c.now().Before(current.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		lookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	lookups.WithLabelValues("hit").Inc()
	return e.value, true
}

func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expires: c.now().Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictExpired removes every expired entry and reports how many went
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Do returns the cached value for key, or computes and stores it. Concurrent
// callers for the same key share a single computation. Errors are not cached.
// hit reports whether the value came from the cache.
func (c *Cache) Do(key string, fn func() (interface{}, error)) (value interface{}, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	return v, false, err
}

// Run evicts expired entries every interval until ctx is done
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := c.EvictExpired(); evicted > 0 {
				log.WithFields(log.Fields{
					"evicted":   evicted,
					"remaining": c.Len(),
				}).Debug("Evicted expired cache entries")
			}
		}
	}
}
