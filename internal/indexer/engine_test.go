package indexer

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/segment"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
)

func newTestEngine(t *testing.T, dir, ocrEngine string) *Engine {
	t.Helper()
	e, err := NewEngine(config.IndexConfig{
		DataDir:        dir,
		MinTokenLength: 2,
		FlushInterval:  time.Minute,
	}, ocrEngine, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func countSegments(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), segment.FileSuffix) {
			n++
		}
	}
	return n
}

func TestInsertAndPostings(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), "tesseract/5.3.0")
	e.Insert(document.Indexed{ID: "inv.pdf", Text: "invoice total invoice"})

	postings := e.Postings("invoice")
	if len(postings) != 1 {
		t.Fatalf("postings = %v", postings)
	}
	if postings[0].Frequency != 2 {
		t.Errorf("frequency = %d, want 2", postings[0].Frequency)
	}
	if want := []int{0, 14}; !reflect.DeepEqual(postings[0].Positions, want) {
		t.Errorf("positions = %v, want %v", postings[0].Positions, want)
	}
	if e.DocCount() != 1 {
		t.Errorf("doc count = %d", e.DocCount())
	}
}

func TestInsertTwiceLeavesOneGenerationOfPostings(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), "tesseract/5.3.0")
	doc := document.Indexed{ID: "inv.pdf", Text: "alpha beta"}
	e.Insert(doc)
	gen1 := e.Generation()
	e.Insert(doc)

	if e.Generation() == gen1 {
		t.Error("generation did not advance on re-insert")
	}
	if e.DocCount() != 1 {
		t.Errorf("doc count = %d, want 1", e.DocCount())
	}
	if got := e.Postings("alpha"); len(got) != 1 || got[0].Frequency != 1 {
		t.Errorf("postings = %v", got)
	}
}

func TestRemove(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), "tesseract/5.3.0")
	e.Insert(document.Indexed{ID: "a.pdf", Text: "alpha beta"})

	if !e.Remove("a.pdf") {
		t.Fatal("remove reported missing")
	}
	if e.Remove("a.pdf") {
		t.Error("second remove should report missing")
	}
	if got := e.Postings("alpha"); got != nil {
		t.Errorf("postings survived removal: %v", got)
	}
}

func TestFlushAndRecover(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, dir, "tesseract/5.3.0")
	e.Insert(document.Indexed{ID: "a.pdf", Text: "invoice total"})
	e.Insert(document.Indexed{ID: "b.pdf", Text: "invoice shipping"})
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	recovered := newTestEngine(t, dir, "tesseract/5.3.0")
	if recovered.DocCount() != 2 {
		t.Fatalf("recovered doc count = %d, want 2", recovered.DocCount())
	}
	if got := recovered.Postings("invoice"); len(got) != 2 {
		t.Errorf("recovered postings = %v", got)
	}
	if recovered.AvgDocLength() != e.AvgDocLength() {
		t.Errorf("avg doc length = %f, want %f", recovered.AvgDocLength(), e.AvgDocLength())
	}
}

func TestRecoverySkipsSegmentsFromOtherEngines(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, dir, "tesseract/5.3.0")
	e.Insert(document.Indexed{ID: "a.pdf", Text: "invoice total"})
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	upgraded := newTestEngine(t, dir, "tesseract/5.4.0")
	if upgraded.DocCount() != 0 {
		t.Errorf("doc count = %d, want 0 after engine upgrade", upgraded.DocCount())
	}
	// The old segment must survive for a rollback.
	if n := countSegments(t, dir); n != 1 {
		t.Errorf("segments = %d, want 1", n)
	}
}

func TestFlushSkipsWhenNothingChanged(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, dir, "tesseract/5.3.0")
	e.Insert(document.Indexed{ID: "a.pdf", Text: "invoice total"})
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if n := countSegments(t, dir); n != 1 {
		t.Errorf("segments = %d, want 1 after clean flush", n)
	}
}

func TestFlushPrunesOlderSegments(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, dir, "tesseract/5.3.0")
	e.Insert(document.Indexed{ID: "a.pdf", Text: "invoice total"})
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	e.Insert(document.Indexed{ID: "b.pdf", Text: "receipt amount"})
	if err := e.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if n := countSegments(t, dir); n != 1 {
		t.Errorf("segments = %d, want 1 after prune", n)
	}

	recovered := newTestEngine(t, dir, "tesseract/5.3.0")
	if recovered.DocCount() != 2 {
		t.Errorf("recovered doc count = %d, want 2", recovered.DocCount())
	}
}

func TestVocabularyFollowsMutations(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), "tesseract/5.3.0")
	e.Insert(document.Indexed{ID: "a.pdf", Text: "apple banana"})

	if got := e.Vocabulary(); !reflect.DeepEqual(got, []string{"apple", "banana"}) {
		t.Fatalf("vocabulary = %v", got)
	}
	e.Insert(document.Indexed{ID: "b.pdf", Text: "cherry"})
	if got := e.Vocabulary(); !reflect.DeepEqual(got, []string{"apple", "banana", "cherry"}) {
		t.Errorf("vocabulary after insert = %v", got)
	}
}
