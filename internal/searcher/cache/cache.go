// Package cache keeps recent query results in memory. Keys include the index
// generation, so a result cached before an index mutation can never be
// served after it; stale generations simply age out of the LRU. Concurrent
// identical queries are coalesced into one execution.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/executor"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/parser"
)

type QueryCache struct {
	entries *lru.Cache[string, *executor.SearchResult]
	group   singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(size int) (*QueryCache, error) {
	entries, err := lru.New[string, *executor.SearchResult](size)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}
	return &QueryCache{entries: entries}, nil
}

// GetOrCompute returns the cached result for key or runs computeFn once
// across concurrent callers. The returned result is shared; callers must not
// modify it.
func (c *QueryCache) GetOrCompute(key string, computeFn func() (*executor.SearchResult, error)) (*executor.SearchResult, bool, error) {
	if result, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return result, true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.entries.Get(key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Purge drops every cached result.
func (c *QueryCache) Purge() {
	c.entries.Purge()
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) Len() int {
	return c.entries.Len()
}

// BuildKey derives a stable cache key from the normalized plan, the result
// limit, the fuzzy flag, and the index generation the result would be
// computed against. Term order does not matter: "total invoice" and
// "invoice total" share an entry. Fuzzy and exact runs of the same text
// never do.
func BuildKey(plan *parser.QueryPlan, limit int, fuzzy bool, generation uint64) string {
	terms := append([]string(nil), plan.Terms...)
	sort.Strings(terms)
	excludes := append([]string(nil), plan.ExcludeTerms...)
	sort.Strings(excludes)
	raw := fmt.Sprintf("gen=%d|limit=%d|fuzzy=%t|%s|-%s",
		generation, limit, fuzzy, strings.Join(terms, ","), strings.Join(excludes, ","))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", hash[:16])
}
