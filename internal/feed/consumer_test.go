package feed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/catalog"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/docstore"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
)

type recordingIndex struct {
	inserted []document.Indexed
}

func (r *recordingIndex) Insert(doc document.Indexed) {
	r.inserted = append(r.inserted, doc)
}

type failingStore struct {
	docstore.Store
	err error
}

func (f *failingStore) Put(_ context.Context, _ document.Indexed) error {
	return f.err
}

func encode(t *testing.T, doc document.Indexed) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestHandleMessageIndexesStoresAndCatalogs(t *testing.T) {
	idx := &recordingIndex{}
	docs := docstore.NewMemory()
	cat := catalog.NewMemory()
	handler := HandleMessage(idx, docs, cat, nil)
	ctx := context.Background()

	doc := document.Assemble("inbox/report.pdf", []document.PageText{
		{Index: 0, Text: "quarterly totals"},
		{Index: 1, Text: "", Failed: true},
		{Index: 2, Text: "appendix"},
	})

	if err := handler(ctx, []byte(doc.ID), encode(t, doc)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(idx.inserted) != 1 || idx.inserted[0].ID != doc.ID {
		t.Errorf("index received %+v", idx.inserted)
	}
	stored, found, err := docs.GetIndexed(ctx, doc.ID)
	if err != nil || !found {
		t.Fatalf("docstore lookup: found=%v err=%v", found, err)
	}
	if stored.Text != doc.Text || len(stored.Pages) != 3 {
		t.Errorf("stored document = %+v", stored)
	}
	rec, found, err := cat.Get(ctx, doc.ID)
	if err != nil || !found {
		t.Fatalf("catalog lookup: found=%v err=%v", found, err)
	}
	if rec.State != document.StateReady || rec.PagesOK != 2 || rec.PagesFailed != 1 {
		t.Errorf("catalog record = %+v", rec)
	}
}

func TestHandleMessageDropsBadEvents(t *testing.T) {
	idx := &recordingIndex{}
	handler := HandleMessage(idx, nil, nil, nil)
	ctx := context.Background()

	if err := handler(ctx, []byte("k"), []byte("{not json")); err != nil {
		t.Errorf("undecodable event returned %v, want nil so the offset commits", err)
	}
	if err := handler(ctx, []byte("k"), []byte(`{"text":"no id"}`)); err != nil {
		t.Errorf("event without id returned %v, want nil", err)
	}
	if len(idx.inserted) != 0 {
		t.Errorf("bad events reached the index: %+v", idx.inserted)
	}
}

func TestHandleMessageReturnsStoreErrorForRetry(t *testing.T) {
	idx := &recordingIndex{}
	boom := errors.New("disk full")
	handler := HandleMessage(idx, &failingStore{err: boom}, nil, nil)
	ctx := context.Background()

	doc := document.Assemble("a.pdf", []document.PageText{{Index: 0, Text: "x"}})
	err := handler(ctx, []byte(doc.ID), encode(t, doc))
	if !errors.Is(err, boom) {
		t.Errorf("handler error = %v, want wrapped store failure", err)
	}
}

func TestHandleMessageNilStoreIndexesOnly(t *testing.T) {
	idx := &recordingIndex{}
	handler := HandleMessage(idx, nil, nil, nil)
	ctx := context.Background()

	doc := document.Assemble("b.pdf", []document.PageText{{Index: 0, Text: "y"}})
	if err := handler(ctx, []byte(doc.ID), encode(t, doc)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(idx.inserted) != 1 {
		t.Errorf("index received %d documents, want 1", len(idx.inserted))
	}
}
