// Package pipeline drives documents from raw bytes to indexable text:
// rasterize into page images, recognize each page through the content cache,
// and assemble the page texts in order. Documents advance through
// queued -> rasterizing -> ocring -> assembling -> ready|failed, with every
// transition recorded in the catalog.
//
// Failure scope is deliberately narrow. A page whose recognition retries
// exhaust degrades to empty text and the document still reaches Ready; only
// rasterization failures and cancellation fail the whole document, and a
// failed document never aborts the rest of its batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/catalog"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ocr"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/ocrcache"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/rasterize"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	pkgerrors "github.com/ashfaque/local-search-in-scanned-pdf/pkg/errors"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/resilience"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/tracing"
)

// Outcome is the terminal report for one processed document.
type Outcome struct {
	DocID           string
	Source          string
	State           document.State
	Pages           int
	PagesRecognized int
	PagesCached     int
	PagesFailed     int
	Duration        time.Duration
	Err             error

	// Doc is the assembled document when State is StateReady, nil otherwise.
	Doc *document.Indexed
}

// Pipeline converts documents into indexable text. It is safe for concurrent
// use; ProcessAll bounds documents in flight and Process bounds pages in
// flight per document.
type Pipeline struct {
	rasterizer rasterize.Rasterizer
	engine     ocr.Engine
	engineID   string
	cache      *ocrcache.Cache
	catalog    catalog.Catalog
	breaker    *resilience.CircuitBreaker
	cfg        config.PipelineConfig
	retryCfg   resilience.RetryConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Pipeline. engineID is the recognition engine's identity
// string ("name/version"), resolved once by the caller; it keys cache
// fingerprints so results from a different engine build are never reused.
func New(
	cfg config.PipelineConfig,
	ocrCfg config.OCRConfig,
	r rasterize.Rasterizer,
	engine ocr.Engine,
	engineID string,
	cache *ocrcache.Cache,
	cat catalog.Catalog,
	m *metrics.Metrics,
) *Pipeline {
	p := &Pipeline{
		rasterizer: r,
		engine:     engine,
		engineID:   engineID,
		cache:      cache,
		catalog:    cat,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.WithComponent("pipeline"),
		retryCfg: resilience.RetryConfig{
			MaxAttempts:    ocrCfg.Retry.MaxAttempts,
			InitialDelay:   ocrCfg.Retry.InitialDelay,
			MaxDelay:       ocrCfg.Retry.MaxDelay,
			Multiplier:     ocrCfg.Retry.Multiplier,
			JitterFraction: ocrCfg.Retry.JitterFraction,
			Retryable:      pkgerrors.IsRetryable,
		},
	}
	if ocrCfg.Breaker.Enabled {
		p.breaker = resilience.NewCircuitBreaker("ocr", resilience.CircuitBreakerConfig{
			FailureThreshold:    ocrCfg.Breaker.FailureThreshold,
			ResetTimeout:        ocrCfg.Breaker.ResetTimeout,
			HalfOpenMaxRequests: ocrCfg.Breaker.HalfOpenMaxRequests,
			OnStateChange: func(s resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues("ocr").Set(float64(s))
				}
			},
		})
	}
	return p
}

// ProcessAll runs every document through Process with at most
// cfg.MaxDocuments in flight. Outcomes come back in input order; onDone, when
// non-nil, is additionally called from worker goroutines as each document
// reaches a terminal state.
func (p *Pipeline) ProcessAll(ctx context.Context, docs []document.Document, onDone func(Outcome)) []Outcome {
	outcomes := make([]Outcome, len(docs))
	var g errgroup.Group
	g.SetLimit(p.cfg.MaxDocuments)
	for i, doc := range docs {
		g.Go(func() error {
			_, o := p.Process(ctx, doc)
			outcomes[i] = o
			if onDone != nil {
				onDone(o)
			}
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// Process runs one document through the full pipeline. The returned Indexed
// is meaningful only when the outcome's State is StateReady.
func (p *Pipeline) Process(ctx context.Context, doc document.Document) (document.Indexed, Outcome) {
	start := time.Now()
	log := p.logger.With("doc_id", doc.ID)

	ctx, span := tracing.StartSpan(ctx, "process", doc.ID)
	if doc.Source != "" {
		span.SetAttr("source", doc.Source)
	}
	defer func() {
		span.End()
		span.Log()
	}()

	if err := ctx.Err(); err != nil {
		return document.Indexed{}, p.fail(ctx, doc, "", start, "queued", err)
	}

	if doc.Content == nil {
		if doc.Source == "" {
			return document.Indexed{}, p.fail(ctx, doc, "", start, "load",
				errors.New("document has neither content nor source path"))
		}
		data, err := os.ReadFile(doc.Source)
		if err != nil {
			return document.Indexed{}, p.fail(ctx, doc, "", start, "load",
				fmt.Errorf("%w: %v", pkgerrors.ErrMalformedDocument, err))
		}
		doc.Content = data
	}
	digest := document.ContentDigest(doc.Content)

	p.setState(ctx, doc.ID, document.StateRasterizing)
	rctx, rspan := tracing.StartChildSpan(ctx, "rasterize")
	rasterStart := time.Now()
	pages, cleanup, err := p.rasterizer.Rasterize(rctx, doc)
	rspan.SetAttr("pages", len(pages))
	rspan.End()
	if p.metrics != nil {
		p.metrics.RasterizeLatency.Observe(time.Since(rasterStart).Seconds())
	}
	if err != nil {
		return document.Indexed{}, p.fail(ctx, doc, digest, start, "rasterize", err)
	}
	defer cleanup()
	// The page images and digest carry everything forward; drop the source
	// bytes so a large batch does not pin every file.
	doc.Content = nil

	p.setState(ctx, doc.ID, document.StateOCRing)
	texts := make([]document.PageText, len(pages))
	var recognized, cached, failed atomic.Int32

	octx, ospan := tracing.StartChildSpan(ctx, "recognize")
	g, gctx := errgroup.WithContext(octx)
	g.SetLimit(p.cfg.MaxPagesPerDoc)
	for _, page := range pages {
		g.Go(func() error {
			res, fromCache, err := p.resolvePage(gctx, digest, page)
			switch {
			case err == nil:
				texts[page.Index] = document.PageText{Index: page.Index, Text: res.Text}
				if fromCache {
					cached.Add(1)
					p.countPage("cached")
				} else {
					recognized.Add(1)
					p.countPage("recognized")
				}
				return nil
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				log.Warn("page unreadable, keeping document with empty page text",
					"page", page.Index,
					"error", err)
				texts[page.Index] = document.PageText{Index: page.Index, Failed: true}
				failed.Add(1)
				p.countPage("failed")
				return nil
			}
		})
	}
	err = g.Wait()
	ospan.End()
	if err != nil {
		o := p.fail(ctx, doc, digest, start, "ocr", err)
		o.Pages = len(pages)
		return document.Indexed{}, o
	}
	if err := ctx.Err(); err != nil {
		o := p.fail(ctx, doc, digest, start, "ocr", err)
		o.Pages = len(pages)
		return document.Indexed{}, o
	}

	p.setState(ctx, doc.ID, document.StateAssembling)
	indexed := document.Assemble(doc.ID, texts)

	o := Outcome{
		DocID:           doc.ID,
		Source:          doc.Source,
		State:           document.StateReady,
		Pages:           len(pages),
		PagesRecognized: int(recognized.Load()),
		PagesCached:     int(cached.Load()),
		PagesFailed:     int(failed.Load()),
		Duration:        time.Since(start),
		Doc:             &indexed,
	}
	p.record(ctx, doc, digest, o)
	p.countDocument("ready")
	log.Info("document ready",
		"pages", o.Pages,
		"recognized", o.PagesRecognized,
		"cached", o.PagesCached,
		"failed_pages", o.PagesFailed,
		"duration", o.Duration)
	return indexed, o
}

// resolvePage returns the page's recognition result, consulting the cache
// first. Concurrent requests for identical content collapse to one engine
// run.
func (p *Pipeline) resolvePage(ctx context.Context, digest string, page document.PageImage) (ocr.Result, bool, error) {
	fp := document.PageFingerprint(digest, page.Index, p.engineID)
	return p.cache.GetOrCompute(ctx, fp, func(ctx context.Context) (ocr.Result, error) {
		return p.recognize(ctx, page)
	})
}

// recognize invokes the engine with retry and the shared circuit breaker.
// Only timeout and engine-error kinds retry; cancellation and a tripped
// breaker stop the attempt loop immediately.
func (p *Pipeline) recognize(ctx context.Context, page document.PageImage) (ocr.Result, error) {
	var res ocr.Result
	attempts := 0
	name := fmt.Sprintf("ocr %s page %d", page.DocumentID, page.Index)
	err := resilience.Retry(ctx, name, p.retryCfg, func() error {
		attempts++
		if attempts > 1 && p.metrics != nil {
			p.metrics.OCRRetriesTotal.Inc()
		}
		call := func() error {
			ocrStart := time.Now()
			r, err := p.engine.Recognize(ctx, page)
			if p.metrics != nil {
				p.metrics.OCRLatency.Observe(time.Since(ocrStart).Seconds())
			}
			if err != nil {
				return err
			}
			res = r
			return nil
		}
		if p.breaker != nil {
			return p.breaker.Execute(call)
		}
		return call()
	})
	if err != nil {
		return ocr.Result{}, err
	}
	return res, nil
}

// fail records a terminal failure and builds its outcome. Cancellation is
// reported as its own metric outcome but still lands as StateFailed in the
// catalog.
func (p *Pipeline) fail(ctx context.Context, doc document.Document, digest string, start time.Time, stage string, err error) Outcome {
	var derr *pkgerrors.DocumentError
	if !errors.As(err, &derr) {
		err = pkgerrors.NewDocumentError(doc.ID, -1, stage, err)
	}
	o := Outcome{
		DocID:    doc.ID,
		Source:   doc.Source,
		State:    document.StateFailed,
		Duration: time.Since(start),
		Err:      err,
	}
	p.record(ctx, doc, digest, o)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		p.countDocument("canceled")
	} else {
		p.countDocument("failed")
	}
	p.logger.Error("document failed",
		"doc_id", doc.ID,
		"stage", stage,
		"duration", o.Duration,
		"error", err)
	return o
}

// setState records a non-terminal transition. Catalog trouble is logged and
// ignored; bookkeeping never fails a document.
func (p *Pipeline) setState(ctx context.Context, docID string, state document.State) {
	if p.catalog == nil {
		return
	}
	if err := p.catalog.SetState(ctx, docID, state, ""); err != nil {
		p.logger.Warn("catalog state update failed", "doc_id", docID, "state", state, "error", err)
	}
	p.logger.Debug("state transition", "doc_id", docID, "state", state)
}

// record merges the terminal outcome into the document's catalog entry. It
// runs detached from ctx so a canceled document still gets its final state
// written.
func (p *Pipeline) record(ctx context.Context, doc document.Document, digest string, o Outcome) {
	if p.catalog == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	rec, ok, err := p.catalog.Get(ctx, doc.ID)
	if err != nil || !ok {
		rec = catalog.Record{DocID: doc.ID}
	}
	if doc.Source != "" {
		rec.Source = doc.Source
	}
	if digest != "" {
		rec.ContentDigest = digest
	}
	rec.State = o.State
	rec.PagesOK = o.PagesRecognized + o.PagesCached
	rec.PagesFailed = o.PagesFailed
	rec.Engine = p.engineID
	rec.LastError = ""
	if o.Err != nil {
		rec.LastError = o.Err.Error()
	}
	if err := p.catalog.Upsert(ctx, rec); err != nil {
		p.logger.Warn("catalog outcome update failed", "doc_id", doc.ID, "error", err)
	}
}

func (p *Pipeline) countDocument(outcome string) {
	if p.metrics != nil {
		p.metrics.DocumentsProcessedTotal.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) countPage(source string) {
	if p.metrics != nil {
		p.metrics.PagesProcessedTotal.WithLabelValues(source).Inc()
	}
}
