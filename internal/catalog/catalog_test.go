package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
)

func TestMemoryUpsertPreservesCreatedAt(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	rec := Record{DocID: "a.pdf", Source: "/docs/a.pdf", Size: 100, State: document.StateQueued}
	if err := c.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	first, found, err := c.Get(ctx, "a.pdf")
	if err != nil || !found {
		t.Fatalf("Get after Upsert: found=%v err=%v", found, err)
	}
	if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set on first Upsert")
	}

	rec.State = document.StateReady
	rec.PagesOK = 4
	if err := c.Upsert(ctx, rec); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	second, _, err := c.Get(ctx, "a.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed across Upsert: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.State != document.StateReady || second.PagesOK != 4 {
		t.Errorf("updated fields lost: %+v", second)
	}
}

func TestMemorySetStateOnExistingRecord(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if err := c.Upsert(ctx, Record{DocID: "b.pdf", Source: "/docs/b.pdf", Size: 50, State: document.StateQueued}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.SetState(ctx, "b.pdf", document.StateFailed, "rasterize: boom"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	rec, _, err := c.Get(ctx, "b.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != document.StateFailed {
		t.Errorf("State = %s, want failed", rec.State)
	}
	if rec.LastError != "rasterize: boom" {
		t.Errorf("LastError = %q", rec.LastError)
	}
	if rec.Size != 50 {
		t.Errorf("SetState clobbered Size: %d", rec.Size)
	}
}

func TestMemoryListSortedAndDelete(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	for _, id := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		if err := c.Upsert(ctx, Record{DocID: id, State: document.StateReady}); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}
	recs, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("List returned %d records, want 3", len(recs))
	}
	for i, want := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		if recs[i].DocID != want {
			t.Errorf("List[%d] = %s, want %s", i, recs[i].DocID, want)
		}
	}

	if err := c.Delete(ctx, "b.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := c.Get(ctx, "b.pdf"); found {
		t.Error("record still present after Delete")
	}
	if err := c.Delete(ctx, "b.pdf"); err != nil {
		t.Errorf("repeat Delete: %v", err)
	}
}

func TestUnchangedSkipLogic(t *testing.T) {
	mtime := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)
	base := Record{
		DocID:   "a.pdf",
		Size:    2048,
		ModTime: mtime,
		State:   document.StateReady,
		Engine:  "tesseract/5.3.0",
	}

	tests := []struct {
		name    string
		mutate  func(*Record)
		size    int64
		modTime time.Time
		engine  string
		want    bool
	}{
		{"identical", nil, 2048, mtime, "tesseract/5.3.0", true},
		{"size changed", nil, 4096, mtime, "tesseract/5.3.0", false},
		{"mtime changed", nil, 2048, mtime.Add(time.Minute), "tesseract/5.3.0", false},
		{"engine upgraded", nil, 2048, mtime, "tesseract/5.4.0", false},
		{"not ready", func(r *Record) { r.State = document.StateFailed }, 2048, mtime, "tesseract/5.3.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := base
			if tt.mutate != nil {
				tt.mutate(&rec)
			}
			if got := rec.Unchanged(tt.size, tt.modTime, tt.engine); got != tt.want {
				t.Errorf("Unchanged = %v, want %v", got, tt.want)
			}
		})
	}
}
