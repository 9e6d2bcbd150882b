package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/catalog"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/docstore"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/pipeline"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

// Processor runs documents through the processing pipeline.
type Processor interface {
	Process(ctx context.Context, doc document.Document) (document.Indexed, pipeline.Outcome)
	ProcessAll(ctx context.Context, docs []document.Document, onDone func(pipeline.Outcome)) []pipeline.Outcome
}

// Index receives ready documents and drops removed ones.
type Index interface {
	Insert(doc document.Indexed)
	Remove(docID string) bool
	Flush() error
}

// Publisher emits document-ready events to the feed.
type Publisher interface {
	Publish(ctx context.Context, doc document.Indexed) error
}

// Progress reports batch completion, done out of total.
type Progress func(done, total int)

// Report summarizes one ingest run.
type Report struct {
	RunID     string
	Scanned   int
	Skipped   int
	Processed int
	Ready     int
	Failed    int
	Removed   int
	Duration  time.Duration
	Outcomes  []pipeline.Outcome
}

// Runner drives scan, freshness check, pipeline, and downstream stores for
// ingest runs. Ready documents land in the index and document store as they
// complete, not after the whole batch.
type Runner struct {
	scanner  *Scanner
	pipeline Processor
	index    Index
	docs     docstore.Store
	catalog  catalog.Catalog
	feed     Publisher
	engineID string
	logger   *slog.Logger
}

// NewRunner wires a Runner. feed may be nil when the event stream is
// disabled.
func NewRunner(
	scanner *Scanner,
	proc Processor,
	idx Index,
	docs docstore.Store,
	cat catalog.Catalog,
	feed Publisher,
	engineID string,
) *Runner {
	return &Runner{
		scanner:  scanner,
		pipeline: proc,
		index:    idx,
		docs:     docs,
		catalog:  cat,
		feed:     feed,
		engineID: engineID,
		logger:   logger.WithComponent("ingest"),
	}
}

// Root returns the absolute source root being scanned.
func (r *Runner) Root() string {
	return r.scanner.Root()
}

// Run performs one full scan-and-index pass. Files whose catalog record shows
// the same size, mtime, and engine are skipped without being read; an
// mtime-only change re-hashes the content and skips when the digest matches.
// Catalog entries whose source file vanished are removed from the index, the
// document store, and the catalog.
func (r *Runner) Run(ctx context.Context, onProgress Progress) (*Report, error) {
	runID := uuid.NewString()
	start := time.Now()
	log := r.logger.With("run_id", runID)
	log.Info("ingest run started", "root", r.scanner.Root())

	candidates, err := r.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: runID, Scanned: len(candidates)}
	present := make(map[string]bool, len(candidates))
	var docs []document.Document
	for _, c := range candidates {
		present[c.DocID] = true
		doc, process := r.plan(ctx, c)
		if !process {
			report.Skipped++
			continue
		}
		r.markQueued(ctx, c)
		docs = append(docs, doc)
	}

	report.Removed = r.removeVanished(ctx, present)

	total := len(docs)
	var done atomic.Int32
	report.Outcomes = r.pipeline.ProcessAll(ctx, docs, func(o pipeline.Outcome) {
		if o.State == document.StateReady && o.Doc != nil {
			r.accept(ctx, o)
		}
		if onProgress != nil {
			onProgress(int(done.Add(1)), total)
		}
	})
	report.Processed = len(report.Outcomes)
	for _, o := range report.Outcomes {
		if o.State == document.StateReady {
			report.Ready++
		} else {
			report.Failed++
		}
	}

	if report.Processed > 0 || report.Removed > 0 {
		if err := r.index.Flush(); err != nil {
			log.Warn("index flush failed", "error", err)
		}
	}

	report.Duration = time.Since(start)
	log.Info("ingest run finished",
		"scanned", report.Scanned,
		"skipped", report.Skipped,
		"processed", report.Processed,
		"ready", report.Ready,
		"failed", report.Failed,
		"removed", report.Removed,
		"duration", report.Duration)
	return report, nil
}

// IngestFile runs a single file through the same freshness check and
// pipeline as a full run. processed is false when the file was skipped as
// unchanged.
func (r *Runner) IngestFile(ctx context.Context, path string) (pipeline.Outcome, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return pipeline.Outcome{}, false, fmt.Errorf("resolving %s: %w", path, err)
	}
	rel, err := r.scanner.Rel(abs)
	if err != nil {
		return pipeline.Outcome{}, false, fmt.Errorf("relativizing %s: %w", path, err)
	}
	if !r.scanner.Matches(rel) {
		return pipeline.Outcome{}, false, fmt.Errorf("%s does not match the source globs", rel)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return pipeline.Outcome{}, false, fmt.Errorf("stat %s: %w", path, err)
	}
	c := Candidate{DocID: rel, Path: abs, Size: info.Size(), ModTime: info.ModTime()}

	doc, process := r.plan(ctx, c)
	if !process {
		return pipeline.Outcome{DocID: rel, Source: abs, State: document.StateReady}, false, nil
	}
	r.markQueued(ctx, c)
	_, o := r.pipeline.Process(ctx, doc)
	if o.State == document.StateReady && o.Doc != nil {
		r.accept(ctx, o)
	}
	return o, true, nil
}

// RemoveFile drops a source file's document from the index, the document
// store, and the catalog. It reports whether the index held the document.
func (r *Runner) RemoveFile(ctx context.Context, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := r.scanner.Rel(abs)
	if err != nil {
		return false
	}
	return r.remove(ctx, rel)
}

// plan decides whether a candidate needs processing. It returns the document
// to submit when it does.
func (r *Runner) plan(ctx context.Context, c Candidate) (document.Document, bool) {
	doc := document.Document{ID: c.DocID, Source: c.Path}

	rec, found, err := r.catalog.Get(ctx, c.DocID)
	if err != nil {
		r.logger.Warn("catalog lookup failed, reprocessing", "doc_id", c.DocID, "error", err)
		return doc, true
	}
	if !found {
		return doc, true
	}
	if rec.Unchanged(c.Size, c.ModTime, r.engineID) {
		r.logger.Debug("skipping unchanged document", "doc_id", c.DocID)
		return document.Document{}, false
	}

	// Same size but a newer mtime is usually a copy or touch. Re-hash the
	// bytes before paying for recognition.
	if rec.State == document.StateReady && rec.Engine == r.engineID &&
		rec.Size == c.Size && rec.ContentDigest != "" {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return doc, true
		}
		if document.ContentDigest(data) == rec.ContentDigest {
			rec.ModTime = c.ModTime
			if err := r.catalog.Upsert(ctx, rec); err != nil {
				r.logger.Warn("catalog refresh failed", "doc_id", c.DocID, "error", err)
			}
			r.logger.Debug("mtime changed but content identical, skipping", "doc_id", c.DocID)
			return document.Document{}, false
		}
		doc.Content = data
	}
	return doc, true
}

// markQueued seeds the catalog record with the file metadata the pipeline's
// terminal merge preserves.
func (r *Runner) markQueued(ctx context.Context, c Candidate) {
	rec, found, err := r.catalog.Get(ctx, c.DocID)
	if err != nil || !found {
		rec = catalog.Record{DocID: c.DocID}
	}
	rec.Source = c.Path
	rec.Size = c.Size
	rec.ModTime = c.ModTime
	rec.State = document.StateQueued
	rec.LastError = ""
	if err := r.catalog.Upsert(ctx, rec); err != nil {
		r.logger.Warn("catalog queue update failed", "doc_id", c.DocID, "error", err)
	}
}

// accept lands a ready document in the index, the document store, and the
// feed. Runs detached from ctx: a document that finished assembling is kept
// even when the batch is being canceled.
func (r *Runner) accept(ctx context.Context, o pipeline.Outcome) {
	ctx = context.WithoutCancel(ctx)
	r.index.Insert(*o.Doc)
	if err := r.docs.Put(ctx, *o.Doc); err != nil {
		r.logger.Warn("docstore put failed", "doc_id", o.DocID, "error", err)
	}
	if r.feed != nil {
		if err := r.feed.Publish(ctx, *o.Doc); err != nil {
			r.logger.Warn("feed publish failed", "doc_id", o.DocID, "error", err)
		}
	}
}

// removeVanished drops documents whose source files disappeared since the
// last run.
func (r *Runner) removeVanished(ctx context.Context, present map[string]bool) int {
	recs, err := r.catalog.List(ctx)
	if err != nil {
		r.logger.Warn("catalog list failed, skipping removal pass", "error", err)
		return 0
	}
	removed := 0
	for _, rec := range recs {
		if present[rec.DocID] {
			continue
		}
		r.remove(ctx, rec.DocID)
		removed++
	}
	return removed
}

func (r *Runner) remove(ctx context.Context, docID string) bool {
	inIndex := r.index.Remove(docID)
	if err := r.docs.Delete(ctx, docID); err != nil {
		r.logger.Warn("docstore delete failed", "doc_id", docID, "error", err)
	}
	if err := r.catalog.Delete(ctx, docID); err != nil {
		r.logger.Warn("catalog delete failed", "doc_id", docID, "error", err)
	}
	r.logger.Info("document removed", "doc_id", docID, "was_indexed", inIndex)
	return inIndex
}
