package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/docstore"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/feed"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ingest"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher"
	sehandler "github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/handler"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/server"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/health"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
)

var (
	serveNoScan      bool
	serveFeedConsume bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search API and keep the index synced with the source tree",
	Long: `Start the HTTP search API. On startup the source tree is reconciled
against the index, and a filesystem watcher keeps them in sync while
the server runs.

With --feed-consume the node indexes documents arriving on the feed
topic instead of scanning a local source tree; no OCR tooling is needed
on such a node.

Examples:
  pdfsearch serve
  pdfsearch serve --no-scan
  pdfsearch serve --feed-consume`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoScan, "no-scan", false, "skip the startup reconciliation scan")
	serveCmd.Flags().BoolVar(&serveFeedConsume, "feed-consume", false, "index from the feed topic instead of the local source tree")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	if serveFeedConsume {
		return runFeedConsumer(ctx, m)
	}

	app, err := newApp(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := searcher.New(app.index, app.docs, cfg.Search, m)
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("tesseract", health.Probe(app.ocr.Check))
	checker.Register("poppler", health.Probe(app.rasterizer.Check))
	checker.Register("cache_store", health.Probe(app.cache.StoreHealthy))
	checker.Register("catalog", health.Probe(app.catalog.Ping))
	checker.Register("index", indexHealth(app.index))

	router := server.NewRouter(cfg.Server,
		sehandler.New(svc, cfg.Search),
		server.NewDocuments(app.catalog, app.docs),
		checker, m)
	srv := server.New(cfg.Server, router)

	app.index.StartFlushLoop(ctx)
	startMetricsListener(ctx, m)

	var wg sync.WaitGroup
	if !serveNoScan {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("startup scan", "root", app.runner.Root())
			report, err := app.runner.Run(ctx, nil)
			if err != nil {
				slog.Error("startup scan failed", "error", err)
				return
			}
			slog.Info("startup scan done",
				"scanned", report.Scanned,
				"indexed", report.Ready,
				"skipped", report.Skipped,
				"failed", report.Failed,
				"removed", report.Removed)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ingest.NewWatcher(cfg.Source, app.runner).Run(ctx); err != nil {
			slog.Error("source watcher stopped", "error", err)
		}
	}()

	err = srv.Run(ctx)
	wg.Wait()
	return err
}

// runFeedConsumer serves search over an index fed by the shared topic. The
// index engine adopts whatever OCR engine identity the newest local segment
// carries, so the node never has to probe tesseract itself.
func runFeedConsumer(ctx context.Context, m *metrics.Metrics) error {
	if !cfg.Feed.Enabled {
		return fmt.Errorf("--feed-consume requires feed.enabled in the config")
	}

	engine, err := indexer.NewEngine(cfg.Index, "", m)
	if err != nil {
		return err
	}
	defer engine.Close()

	docs, err := docstore.NewBolt(cfg.Index.DataDir)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	defer docs.Close()

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	consumer := feed.NewConsumer(cfg.Feed, engine, docs, cat, m)
	defer consumer.Close()

	svc, err := searcher.New(engine, docs, cfg.Search, m)
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("catalog", health.Probe(cat.Ping))
	checker.Register("index", indexHealth(engine))

	router := server.NewRouter(cfg.Server,
		sehandler.New(svc, cfg.Search),
		server.NewDocuments(cat, docs),
		checker, m)
	srv := server.New(cfg.Server, router)

	engine.StartFlushLoop(ctx)
	startMetricsListener(ctx, m)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("feed consumer stopped", "error", err)
		}
	}()

	err = srv.Run(ctx)
	wg.Wait()
	return err
}

// startMetricsListener runs the dedicated scrape listener. The API router
// serves /metrics as well, so a shared or unset port needs no second
// listener.
func startMetricsListener(ctx context.Context, m *metrics.Metrics) {
	if m == nil || cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.Server.Port {
		return
	}
	metrics.StartServer(ctx, cfg.Metrics.Port)
}

// indexHealth reports the index document count. An empty index is healthy;
// it just has nothing to find yet.
func indexHealth(engine *indexer.Engine) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", engine.DocCount()),
		}
	}
}
