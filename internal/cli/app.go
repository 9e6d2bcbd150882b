package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/catalog"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/docstore"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/feed"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ingest"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ocr"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ocr/tesseract"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ocrcache"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/pipeline"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/rasterize"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/redis"
)

// app is the assembled component graph behind the ingest and serve commands.
// Close releases components in reverse construction order.
type app struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	ocr        *tesseract.Engine
	engineID   string
	rasterizer *rasterize.Poppler
	cache      *ocrcache.Cache
	catalog    catalog.Catalog
	index      *indexer.Engine
	docs       docstore.Store
	publisher  *feed.Publisher
	pipeline   *pipeline.Pipeline
	runner     *ingest.Runner

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("component close failed", "error", err)
		}
	}
	a.closers = nil
}

// newApp wires the full processing graph. Both external tools are probed up
// front so a missing binary surfaces as one clear error instead of per-page
// failures halfway through a run.
func newApp(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*app, error) {
	a := &app{cfg: cfg, metrics: m}

	a.ocr = tesseract.New(cfg.OCR)
	engineID, err := ocr.Identity(ctx, a.ocr)
	if err != nil {
		return nil, fmt.Errorf("probing OCR engine (is tesseract installed?): %w", err)
	}
	a.engineID = engineID

	a.rasterizer = rasterize.New(cfg.Rasterizer)
	if err := a.rasterizer.Check(ctx); err != nil {
		return nil, fmt.Errorf("probing rasterizer (is poppler installed?): %w", err)
	}

	if a.cache, err = openCache(cfg, m); err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(a.cache.Close)

	if a.catalog, err = openCatalog(cfg); err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(a.catalog.Close)

	if a.index, err = indexer.NewEngine(cfg.Index, engineID, m); err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(a.index.Close)

	if a.docs, err = docstore.NewBolt(cfg.Index.DataDir); err != nil {
		a.Close()
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	a.onClose(a.docs.Close)

	var pub ingest.Publisher
	if cfg.Feed.Enabled {
		a.publisher = feed.NewPublisher(cfg.Feed, m)
		a.onClose(a.publisher.Close)
		pub = a.publisher
	}

	a.pipeline = pipeline.New(cfg.Pipeline, cfg.OCR, a.rasterizer, a.ocr, engineID, a.cache, a.catalog, m)

	scanner, err := ingest.NewScanner(cfg.Source)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = ingest.NewRunner(scanner, a.pipeline, a.index, a.docs, a.catalog, pub, engineID)
	return a, nil
}

func openCache(cfg *config.Config, m *metrics.Metrics) (*ocrcache.Cache, error) {
	var store ocrcache.Store
	switch cfg.Cache.Backend {
	case "bolt":
		s, err := ocrcache.NewBoltStore(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening cache store: %w", err)
		}
		store = s
	case "redis":
		client, err := redis.NewClient(cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to cache redis: %w", err)
		}
		store = ocrcache.NewRedisStore(client, cfg.Cache.TTL)
	case "none":
		// Memory tier only.
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	return ocrcache.New(cfg.Cache, store, m)
}

func openCatalog(cfg *config.Config) (catalog.Catalog, error) {
	switch cfg.Catalog.Backend {
	case "postgres":
		cat, err := catalog.NewPostgres(cfg.Catalog.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to catalog: %w", err)
		}
		return cat, nil
	case "memory":
		return catalog.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}
