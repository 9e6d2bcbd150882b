package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/catalog"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/docstore"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/pipeline"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	pkgerrors "github.com/ashfaque/local-search-in-scanned-pdf/pkg/errors"
)

const testEngineID = "fake/1.0"

// fakeProcessor stands in for the pipeline: one page per document whose text
// is the file content. It honors the pipeline's catalog contract by writing
// the terminal record, so the runner's freshness logic sees what it would in
// production.
type fakeProcessor struct {
	catalog catalog.Catalog
	fail    map[string]bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeProcessor) Process(ctx context.Context, doc document.Document) (document.Indexed, pipeline.Outcome) {
	f.mu.Lock()
	f.calls = append(f.calls, doc.ID)
	f.mu.Unlock()

	if f.fail[doc.ID] {
		o := pipeline.Outcome{DocID: doc.ID, Source: doc.Source, State: document.StateFailed, Err: pkgerrors.ErrMalformedDocument}
		f.record(ctx, doc, "", o)
		return document.Indexed{}, o
	}

	content := doc.Content
	if content == nil {
		data, err := os.ReadFile(doc.Source)
		if err != nil {
			o := pipeline.Outcome{DocID: doc.ID, Source: doc.Source, State: document.StateFailed, Err: err}
			f.record(ctx, doc, "", o)
			return document.Indexed{}, o
		}
		content = data
	}
	indexed := document.Assemble(doc.ID, []document.PageText{{Index: 0, Text: string(content)}})
	o := pipeline.Outcome{
		DocID:           doc.ID,
		Source:          doc.Source,
		State:           document.StateReady,
		Pages:           1,
		PagesRecognized: 1,
		Doc:             &indexed,
	}
	f.record(ctx, doc, document.ContentDigest(content), o)
	return indexed, o
}

func (f *fakeProcessor) ProcessAll(ctx context.Context, docs []document.Document, onDone func(pipeline.Outcome)) []pipeline.Outcome {
	outcomes := make([]pipeline.Outcome, len(docs))
	for i, doc := range docs {
		_, o := f.Process(ctx, doc)
		outcomes[i] = o
		if onDone != nil {
			onDone(o)
		}
	}
	return outcomes
}

func (f *fakeProcessor) record(ctx context.Context, doc document.Document, digest string, o pipeline.Outcome) {
	rec, ok, err := f.catalog.Get(ctx, doc.ID)
	if err != nil || !ok {
		rec = catalog.Record{DocID: doc.ID, Source: doc.Source}
	}
	rec.ContentDigest = digest
	rec.State = o.State
	rec.PagesOK = o.PagesRecognized + o.PagesCached
	rec.PagesFailed = o.PagesFailed
	rec.Engine = testEngineID
	if o.Err != nil {
		rec.LastError = o.Err.Error()
	}
	f.catalog.Upsert(ctx, rec)
}

func (f *fakeProcessor) processed(docID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.calls {
		if id == docID {
			n++
		}
	}
	return n
}

func (f *fakeProcessor) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type runnerEnv struct {
	root    string
	proc    *fakeProcessor
	index   *indexer.Engine
	docs    docstore.Store
	catalog catalog.Catalog
	runner  *Runner
}

func newRunnerEnv(t *testing.T) *runnerEnv {
	t.Helper()
	root := t.TempDir()
	scanner, err := NewScanner(config.SourceConfig{
		Root:    root,
		Include: []string{"**/*.pdf"},
		Exclude: []string{"**/.*/**"},
	})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	idx, err := indexer.NewEngine(config.IndexConfig{
		DataDir:        t.TempDir(),
		MinTokenLength: 2,
		FlushInterval:  time.Minute,
	}, testEngineID, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	env := &runnerEnv{
		root:    root,
		docs:    docstore.NewMemory(),
		catalog: catalog.NewMemory(),
		index:   idx,
	}
	env.proc = &fakeProcessor{catalog: env.catalog, fail: make(map[string]bool)}
	env.runner = NewRunner(scanner, env.proc, idx, env.docs, env.catalog, nil, testEngineID)
	return env
}

func (e *runnerEnv) write(t *testing.T, rel string, content string) string {
	t.Helper()
	path := filepath.Join(e.root, filepath.FromSlash(rel))
	writeFile(t, path, []byte(content))
	return path
}

func TestRunIndexesSourceTree(t *testing.T) {
	env := newRunnerEnv(t)
	env.write(t, "a.pdf", "alpha invoice")
	env.write(t, "sub/b.pdf", "beta receipt")
	env.write(t, "notes.txt", "ignored")
	ctx := context.Background()

	var lastDone, lastTotal int
	report, err := env.runner.Run(ctx, func(done, total int) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scanned != 2 || report.Processed != 2 || report.Ready != 2 || report.Skipped != 0 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.RunID == "" {
		t.Error("run ID not assigned")
	}
	if lastDone != 2 || lastTotal != 2 {
		t.Errorf("final progress = %d/%d, want 2/2", lastDone, lastTotal)
	}
	if n := env.index.DocCount(); n != 2 {
		t.Errorf("index documents = %d, want 2", n)
	}
	if _, found, _ := env.docs.GetIndexed(ctx, "sub/b.pdf"); !found {
		t.Error("docstore missing sub/b.pdf")
	}
	rec, found, _ := env.catalog.Get(ctx, "a.pdf")
	if !found || rec.State != document.StateReady || rec.ContentDigest == "" || rec.Size != int64(len("alpha invoice")) {
		t.Errorf("catalog record = %+v", rec)
	}
}

func TestSecondRunSkipsUnchanged(t *testing.T) {
	env := newRunnerEnv(t)
	env.write(t, "a.pdf", "alpha")
	env.write(t, "b.pdf", "beta")
	ctx := context.Background()

	if _, err := env.runner.Run(ctx, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := env.runner.Run(ctx, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Skipped != 2 || report.Processed != 0 {
		t.Errorf("second run report = %+v, want all skipped", report)
	}
	if got := env.proc.totalCalls(); got != 2 {
		t.Errorf("pipeline ran %d times across runs, want 2", got)
	}
}

func TestModifiedFileReprocessed(t *testing.T) {
	env := newRunnerEnv(t)
	path := env.write(t, "a.pdf", "version one")
	env.write(t, "b.pdf", "stable")
	ctx := context.Background()

	if _, err := env.runner.Run(ctx, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}

	writeFile(t, path, []byte("version two, longer"))
	future := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	report, err := env.runner.Run(ctx, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Processed != 1 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 1 processed 1 skipped", report)
	}
	if got := env.proc.processed("a.pdf"); got != 2 {
		t.Errorf("a.pdf processed %d times, want 2", got)
	}
	doc, _, _ := env.docs.GetIndexed(ctx, "a.pdf")
	if doc.Text != "version two, longer" {
		t.Errorf("docstore text = %q, want updated content", doc.Text)
	}
}

func TestMtimeOnlyChangeConfirmedByDigest(t *testing.T) {
	env := newRunnerEnv(t)
	path := env.write(t, "a.pdf", "same bytes")
	ctx := context.Background()

	if _, err := env.runner.Run(ctx, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}

	touched := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := os.Chtimes(path, touched, touched); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	report, err := env.runner.Run(ctx, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Skipped != 1 || report.Processed != 0 {
		t.Errorf("report = %+v, want digest-confirmed skip", report)
	}
	if got := env.proc.totalCalls(); got != 1 {
		t.Errorf("pipeline ran %d times, want 1", got)
	}
	rec, _, _ := env.catalog.Get(ctx, "a.pdf")
	if !rec.ModTime.Equal(touched) {
		t.Errorf("catalog mtime = %v, want refreshed to %v", rec.ModTime, touched)
	}
}

func TestVanishedFileRemoved(t *testing.T) {
	env := newRunnerEnv(t)
	env.write(t, "a.pdf", "keep me")
	path := env.write(t, "b.pdf", "delete me")
	ctx := context.Background()

	if _, err := env.runner.Run(ctx, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("removing source: %v", err)
	}

	report, err := env.runner.Run(ctx, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Removed != 1 || report.Scanned != 1 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 1 removed 1 skipped", report)
	}
	if n := env.index.DocCount(); n != 1 {
		t.Errorf("index documents = %d, want 1", n)
	}
	if _, found, _ := env.docs.GetIndexed(ctx, "b.pdf"); found {
		t.Error("docstore still holds removed document")
	}
	if _, found, _ := env.catalog.Get(ctx, "b.pdf"); found {
		t.Error("catalog still holds removed document")
	}
}

func TestFailedDocumentCountedNotIndexed(t *testing.T) {
	env := newRunnerEnv(t)
	env.write(t, "good.pdf", "fine")
	env.write(t, "bad.pdf", "broken")
	env.proc.fail["bad.pdf"] = true
	ctx := context.Background()

	report, err := env.runner.Run(ctx, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Ready != 1 || report.Failed != 1 {
		t.Errorf("report = %+v, want 1 ready 1 failed", report)
	}
	if n := env.index.DocCount(); n != 1 {
		t.Errorf("index documents = %d, want only the good one", n)
	}
	rec, _, _ := env.catalog.Get(ctx, "bad.pdf")
	if rec.State != document.StateFailed || rec.LastError == "" {
		t.Errorf("failed record = %+v", rec)
	}
}

func TestIngestFileAndRemoveFile(t *testing.T) {
	env := newRunnerEnv(t)
	path := env.write(t, "solo.pdf", "single file")
	ctx := context.Background()

	o, processed, err := env.runner.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if !processed || o.State != document.StateReady || o.DocID != "solo.pdf" {
		t.Errorf("outcome = %+v processed=%v", o, processed)
	}
	if n := env.index.DocCount(); n != 1 {
		t.Fatalf("index documents = %d, want 1", n)
	}

	// Unchanged file skips.
	_, processed, err = env.runner.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("second IngestFile: %v", err)
	}
	if processed {
		t.Error("unchanged file was reprocessed")
	}

	if !env.runner.RemoveFile(ctx, path) {
		t.Error("RemoveFile did not find the document in the index")
	}
	if n := env.index.DocCount(); n != 0 {
		t.Errorf("index documents = %d after removal, want 0", n)
	}

	txt := filepath.Join(env.root, "readme.txt")
	writeFile(t, txt, []byte("nope"))
	if _, _, err := env.runner.IngestFile(ctx, txt); err == nil {
		t.Error("IngestFile accepted a file outside the source globs")
	}
}
