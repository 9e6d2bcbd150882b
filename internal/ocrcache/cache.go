package ocrcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ocr"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Coalesced   uint64 `json:"coalesced"`
	StoreErrors uint64 `json:"storeErrors"`
	Entries     int    `json:"entries"`
	Bytes       int64  `json:"bytes"`
}

type entry struct {
	result ocr.Result
	size   int64
}

// Cache keys OCR results by page fingerprint. The memory tier is an LRU
// bounded by both entry count and aggregate bytes; an optional Store adds a
// durable tier that survives restarts. Concurrent lookups for the same
// fingerprint are coalesced so the engine runs at most once per page.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, entry]
	bytes    int64
	maxBytes int64

	store   Store
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	coalesced   atomic.Uint64
	storeErrors atomic.Uint64
}

// New builds a cache from configuration. store may be nil for memory-only
// operation; m may be nil when no registry is wired.
func New(cfg config.CacheConfig, store Store, m *metrics.Metrics) (*Cache, error) {
	c := &Cache{
		store:    store,
		maxBytes: cfg.MaxBytes,
		metrics:  m,
		logger:   logger.WithComponent("ocrcache"),
	}
	l, err := simplelru.NewLRU[string, entry](cfg.MaxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	c.lru = l
	return c, nil
}

// onEvict only keeps the byte accounting straight; eviction counters are
// bumped at the call sites that actually evict for capacity.
func (c *Cache) onEvict(_ string, e entry) {
	c.bytes -= e.size
}

// Get returns the cached result for fingerprint, consulting the durable tier
// on a memory miss and promoting what it finds.
func (c *Cache) Get(ctx context.Context, fingerprint string) (ocr.Result, bool) {
	c.mu.Lock()
	if e, ok := c.lru.Get(fingerprint); ok {
		c.mu.Unlock()
		c.recordHit()
		return e.result, true
	}
	c.mu.Unlock()

	if c.store != nil {
		data, found, err := c.store.Get(ctx, fingerprint)
		if err != nil {
			c.degrade("get", fingerprint, err)
		} else if found {
			var res ocr.Result
			if err := json.Unmarshal(data, &res); err != nil {
				c.degrade("decode", fingerprint, err)
			} else {
				c.admit(fingerprint, res, int64(len(data)))
				c.recordHit()
				return res, true
			}
		}
	}

	c.recordMiss()
	return ocr.Result{}, false
}

// Put stores result under fingerprint in both tiers.
func (c *Cache) Put(ctx context.Context, fingerprint string, result ocr.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("failed to encode result", "fingerprint", fingerprint, "error", err)
		return
	}
	c.admit(fingerprint, result, int64(len(data)))
	if c.store != nil {
		if err := c.store.Put(ctx, fingerprint, data); err != nil {
			c.degrade("put", fingerprint, err)
		}
	}
}

// admit inserts into the memory tier and trims back under both bounds.
func (c *Cache) admit(fingerprint string, result ocr.Result, size int64) {
	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Remove first so the eviction callback settles the byte accounting for
	// a replaced entry.
	c.lru.Remove(fingerprint)
	if c.lru.Add(fingerprint, entry{result: result, size: size}) {
		c.recordEviction()
	}
	c.bytes += size
	for c.maxBytes > 0 && c.bytes > c.maxBytes && c.lru.Len() > 1 {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		c.recordEviction()
	}
}

// GetOrCompute returns the cached result for fingerprint, running compute at
// most once across all concurrent callers on a miss. cached reports whether
// this call was served without invoking compute.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint string, compute func(context.Context) (ocr.Result, error)) (result ocr.Result, cached bool, err error) {
	if res, ok := c.Get(ctx, fingerprint); ok {
		return res, true, nil
	}

	computed := false
	v, err, shared := c.group.Do(fingerprint, func() (any, error) {
		// Another caller may have finished between our miss and this flight.
		if res, ok := c.Get(ctx, fingerprint); ok {
			return res, nil
		}
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		computed = true
		c.Put(ctx, fingerprint, res)
		return res, nil
	})
	if shared {
		c.coalesced.Add(1)
		if c.metrics != nil {
			c.metrics.CacheCoalescedTotal.Inc()
		}
	}
	if err != nil {
		return ocr.Result{}, false, err
	}
	return v.(ocr.Result), !computed, nil
}

// Invalidate removes fingerprint from both tiers.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) {
	c.mu.Lock()
	c.lru.Remove(fingerprint)
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Delete(ctx, fingerprint); err != nil {
			c.degrade("delete", fingerprint, err)
		}
	}
}

// PurgeAll empties both tiers and returns how many durable entries were
// dropped.
func (c *Cache) PurgeAll(ctx context.Context) (int, error) {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
	if c.store == nil {
		return 0, nil
	}
	return c.store.PurgeAll(ctx)
}

// StoreCount returns the number of entries in the durable tier, 0 without
// one.
func (c *Cache) StoreCount(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.Count(ctx)
}

// StoreHealthy probes the durable tier. Callers without a store should not
// register the probe.
func (c *Cache) StoreHealthy(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Ping(ctx)
}

// Stats snapshots the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := c.lru.Len()
	bytes := c.bytes
	c.mu.Unlock()
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Coalesced:   c.coalesced.Load(),
		StoreErrors: c.storeErrors.Load(),
		Entries:     entries,
		Bytes:       bytes,
	}
}

// Close releases the durable tier.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// degrade logs a durable-tier failure and keeps serving from memory.
func (c *Cache) degrade(op, fingerprint string, err error) {
	c.storeErrors.Add(1)
	if c.metrics != nil {
		c.metrics.CacheStoreErrorsTotal.Inc()
	}
	c.logger.Warn("cache store degraded",
		"op", op,
		"fingerprint", fingerprint,
		"error", err)
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *Cache) recordEviction() {
	c.evictions.Add(1)
	if c.metrics != nil {
		c.metrics.CacheEvictionsTotal.Inc()
	}
}
