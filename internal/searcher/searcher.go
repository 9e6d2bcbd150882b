// Package searcher exposes the search operation over the document index,
// tying together query parsing, fuzzy execution, and the per-generation
// query cache.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/cache"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/executor"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/parser"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	pkgerrors "github.com/ashfaque/local-search-in-scanned-pdf/pkg/errors"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
)

type Service struct {
	engine  *indexer.Engine
	exec    *executor.Executor
	cache   *cache.QueryCache
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds the search service. resolver may be nil, in which case hits
// carry no page numbers or snippets; m may be nil.
func New(engine *indexer.Engine, resolver executor.DocResolver, cfg config.SearchConfig, m *metrics.Metrics) (*Service, error) {
	s := &Service{
		engine:  engine,
		exec:    executor.New(engine, resolver, cfg),
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent("searcher"),
	}
	if cfg.QueryCacheSize > 0 {
		qc, err := cache.New(cfg.QueryCacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = qc
	}
	return s, nil
}

// Search runs query against the index and returns up to topK ranked hits.
// Empty or whitespace-only query text and a non-positive topK are invalid; a
// query that matches nothing is a valid search with zero results.
func (s *Service) Search(ctx context.Context, query string, topK int) (*executor.SearchResult, error) {
	return s.search(ctx, query, topK, true)
}

// SearchExact is Search without fuzzy term expansion: only terms the index
// holds verbatim match. Useful when the query is a code or reference number
// that near misses would drown out.
func (s *Service) SearchExact(ctx context.Context, query string, topK int) (*executor.SearchResult, error) {
	return s.search(ctx, query, topK, false)
}

func (s *Service) search(ctx context.Context, query string, topK int, fuzzy bool) (*executor.SearchResult, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		s.countQuery("error")
		return nil, fmt.Errorf("%w: query text is empty", pkgerrors.ErrInvalidQuery)
	}
	if topK < 1 {
		s.countQuery("error")
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", pkgerrors.ErrInvalidQuery, topK)
	}
	if topK > s.cfg.MaxResults {
		topK = s.cfg.MaxResults
	}

	plan := parser.Parse(query, s.engine.Tokenizer())

	var result *executor.SearchResult
	var err error
	cacheHit := false
	if s.cache != nil {
		key := cache.BuildKey(plan, topK, fuzzy, s.engine.Generation())
		result, cacheHit, err = s.cache.GetOrCompute(key, func() (*executor.SearchResult, error) {
			return s.exec.Execute(ctx, plan, topK, fuzzy)
		})
	} else {
		result, err = s.exec.Execute(ctx, plan, topK, fuzzy)
	}
	if err != nil {
		s.countQuery("error")
		return nil, err
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.SearchLatency.Observe(elapsed.Seconds())
		s.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}
	if len(result.Results) == 0 {
		s.countQuery("zero_result")
	} else {
		s.countQuery("hit")
	}
	s.logger.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"fuzzy", fuzzy,
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

// IndexStats is a point-in-time summary of the index.
type IndexStats struct {
	Documents    int     `json:"documents"`
	Terms        int     `json:"terms"`
	Generation   uint64  `json:"generation"`
	AvgDocLength float64 `json:"avg_doc_length"`
}

func (s *Service) IndexStats() IndexStats {
	return IndexStats{
		Documents:    s.engine.DocCount(),
		Terms:        s.engine.TermCount(),
		Generation:   s.engine.Generation(),
		AvgDocLength: s.engine.AvgDocLength(),
	}
}

// CacheStats reports query cache hit/miss counters and whether caching is
// enabled.
func (s *Service) CacheStats() (hits, misses int64, enabled bool) {
	if s.cache == nil {
		return 0, 0, false
	}
	hits, misses = s.cache.Stats()
	return hits, misses, true
}

// PurgeCache drops all cached query results.
func (s *Service) PurgeCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *Service) countQuery(resultType string) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}
