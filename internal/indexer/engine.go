// Package indexer maintains the searchable inverted index over recognized
// document text. The in-memory index is authoritative; segment files on disk
// exist so a restart does not have to re-OCR the corpus. Segments are stamped
// with the OCR engine identity that produced the text, and a segment written
// by a different engine is ignored on load.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/index"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/segment"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/tokenizer"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/metrics"
)

type Engine struct {
	memIndex  *index.MemoryIndex
	writer    *segment.Writer
	tokenizer *tokenizer.Tokenizer
	cfg       config.IndexConfig
	ocrEngine string
	logger    *slog.Logger
	metrics   *metrics.Metrics

	generation atomic.Uint64
	flushedGen atomic.Uint64
	flushMu    sync.Mutex

	vocabMu  sync.Mutex
	vocab    []string
	vocabGen uint64
}

// NewEngine creates the index engine and recovers the newest valid segment
// written by ocrEngine, if any. ocrEngine is the "name/version" identity of
// the OCR engine whose output feeds the index. An empty ocrEngine accepts
// the newest segment regardless of which engine wrote it and adopts that
// engine's identity, for read-mostly callers that have no OCR engine to
// probe.
func NewEngine(cfg config.IndexConfig, ocrEngine string, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		memIndex:  index.NewMemoryIndex(),
		writer:    segment.NewWriter(cfg.DataDir),
		tokenizer: tokenizer.New(cfg.MinTokenLength),
		cfg:       cfg,
		ocrEngine: ocrEngine,
		logger:    logger.WithComponent("indexer"),
		metrics:   m,
	}
	if err := e.loadNewestSegment(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	e.updateGauges()
	return e, nil
}

// Tokenizer exposes the normalisation settings so the query side tokenizes
// exactly like the indexing side.
func (e *Engine) Tokenizer() *tokenizer.Tokenizer {
	return e.tokenizer
}

// Insert tokenizes the document text and adds it to the index, replacing any
// previous postings for the same ID.
func (e *Engine) Insert(doc document.Indexed) {
	tokens := e.tokenizer.Tokenize(doc.Text)
	e.memIndex.AddDocument(doc.ID, tokens)
	e.generation.Add(1)
	e.updateGauges()
	e.logger.Debug("document indexed",
		"doc_id", doc.ID,
		"token_count", len(tokens),
		"mem_size", e.memIndex.Size(),
	)
}

// Remove drops a document from the index, reporting whether it was present.
func (e *Engine) Remove(docID string) bool {
	removed := e.memIndex.RemoveDocument(docID)
	if removed {
		e.generation.Add(1)
		e.updateGauges()
		e.logger.Debug("document removed from index", "doc_id", docID)
	}
	return removed
}

// Postings returns the posting list for an exact term, sorted by DocID.
func (e *Engine) Postings(term string) index.PostingList {
	return e.memIndex.Search(term)
}

// DocFreq returns how many documents contain term.
func (e *Engine) DocFreq(term string) int {
	return e.memIndex.DocFrequency(term)
}

// Vocabulary returns all indexed terms in sorted order. The slice is cached
// between mutations and must not be modified by callers.
func (e *Engine) Vocabulary() []string {
	gen := e.generation.Load()
	e.vocabMu.Lock()
	defer e.vocabMu.Unlock()
	if e.vocab == nil || e.vocabGen != gen {
		e.vocab = e.memIndex.Vocabulary()
		e.vocabGen = gen
	}
	return e.vocab
}

func (e *Engine) DocCount() int {
	return e.memIndex.DocCount()
}

func (e *Engine) TermCount() int {
	return e.memIndex.TermCount()
}

func (e *Engine) DocLength(docID string) int {
	return e.memIndex.DocLength(docID)
}

func (e *Engine) AvgDocLength() float64 {
	return e.memIndex.AvgDocLength()
}

// Generation increases on every index mutation. Query caches key on it so
// stale entries die with the generation that produced them.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

// Flush persists the current index state as a new segment and prunes older
// segment files. A flush with no changes since the last one is a no-op.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	gen := e.generation.Load()
	if gen == e.flushedGen.Load() {
		return nil
	}
	snapshot := e.memIndex.Snapshot()
	if len(snapshot) == 0 {
		e.flushedGen.Store(gen)
		return nil
	}
	segmentName, err := e.writer.Write(snapshot, segment.Meta{
		Engine:     e.ocrEngine,
		DocLengths: e.memIndex.DocLengths(),
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.IndexFlushesTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("writing segment: %w", err)
	}
	e.flushedGen.Store(gen)
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues("ok").Inc()
	}
	e.pruneSegments(segmentName)
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", len(snapshot),
		"docs", e.memIndex.DocCount(),
	)
	return nil
}

// StartFlushLoop persists the index on an interval and once more on
// shutdown.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// Close flushes any unpersisted state.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		return fmt.Errorf("final flush on close: %w", err)
	}
	return nil
}

// loadNewestSegment restores the most recent valid segment whose OCR engine
// matches ours. Segments from other engines are skipped, not deleted: a
// rollback to the previous engine version finds its segment again.
func (e *Engine) loadNewestSegment() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.FileSuffix) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	// Names embed UnixNano, so lexical descending order is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(segFiles)))

	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Warn("skipping unreadable segment",
				"segment", name,
				"error", err,
			)
			continue
		}
		if e.ocrEngine != "" && reader.Engine() != e.ocrEngine {
			e.logger.Info("skipping segment from different OCR engine",
				"segment", name,
				"segment_engine", reader.Engine(),
				"current_engine", e.ocrEngine,
			)
			reader.Close()
			continue
		}
		var loaded []index.TermEntry
		err = reader.ReadAll(func(entry index.TermEntry) error {
			loaded = append(loaded, entry)
			return nil
		})
		if err != nil {
			e.logger.Warn("skipping segment with unreadable postings",
				"segment", name,
				"error", err,
			)
			reader.Close()
			continue
		}
		e.memIndex.Load(loaded, reader.DocLengths())
		if e.ocrEngine == "" {
			e.ocrEngine = reader.Engine()
		}
		e.logger.Info("recovered index from segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
		reader.Close()
		return nil
	}
	e.logger.Info("no usable segment found, starting with empty index")
	return nil
}

// pruneSegments removes segment files older than keep. Segments from other
// OCR engines survive pruning for the same reason loadNewestSegment skips
// them quietly.
func (e *Engine) pruneSegments(keep string) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		e.logger.Warn("pruning segments failed", "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, segment.FileSuffix) || name >= keep {
			continue
		}
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err == nil {
			sameEngine := reader.Engine() == e.ocrEngine
			reader.Close()
			if !sameEngine {
				continue
			}
		}
		if err := os.Remove(path); err != nil {
			e.logger.Warn("removing old segment failed", "segment", name, "error", err)
		} else {
			e.logger.Debug("pruned old segment", "segment", name)
		}
	}
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.IndexDocuments.Set(float64(e.memIndex.DocCount()))
	e.metrics.IndexTerms.Set(float64(e.memIndex.TermCount()))
}
