package server

import (
	"net/http"

	"golang.org/x/time/rate"

	sehandler "github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/handler"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/health"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/middleware"
)

// NewRouter builds the serve-mode HTTP handler.
//
// Route table:
//
//	GET  /api/v1/search             → ranked search
//	GET  /api/v1/documents          → catalog listing
//	GET  /api/v1/documents/{id...}  → document detail
//	GET  /api/v1/index/stats        → index statistics
//	GET  /api/v1/cache/stats        → query cache statistics
//	POST /api/v1/cache/invalidate   → drop the query cache
//	GET  /health                    → liveness
//	GET  /ready                     → readiness (runs component checks)
//	GET  /metrics                   → Prometheus scrape
//
// Middleware chain (outermost first):
//
//	RequestID → RateLimit → Metrics → Timeout → mux
func NewRouter(
	cfg config.ServerConfig,
	search *sehandler.Handler,
	docs *Documents,
	checker *health.Checker,
	m *metrics.Metrics,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/search", search.Search)
	mux.HandleFunc("GET /api/v1/index/stats", search.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", search.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", search.CachePurge)

	// Document IDs are slash-separated relative paths, so the id segment
	// must swallow the rest of the URL.
	mux.HandleFunc("GET /api/v1/documents", docs.List)
	mux.HandleFunc("GET /api/v1/documents/{id...}", docs.Get)

	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.RequestTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	if cfg.RateLimitRPS > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
