// Package catalog tracks per-document processing records: where a document
// came from, what state it reached, and the file metadata that lets an ingest
// run skip unchanged sources. The memory catalog is the default; the postgres
// catalog persists records across runs for multi-station setups.
package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
)

// Record is one document's catalog entry.
type Record struct {
	DocID         string         `json:"doc_id"`
	Source        string         `json:"source"`
	Size          int64          `json:"size"`
	ModTime       time.Time      `json:"mod_time"`
	ContentDigest string         `json:"content_digest,omitempty"`
	State         document.State `json:"state"`
	PagesOK       int            `json:"pages_ok"`
	PagesFailed   int            `json:"pages_failed"`
	Engine        string         `json:"engine,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Unchanged reports whether a source file with the given size and mtime can
// be skipped outright: the record must have reached Ready under the same
// engine with identical file metadata.
func (r Record) Unchanged(size int64, modTime time.Time, engine string) bool {
	return r.State == document.StateReady &&
		r.Size == size &&
		r.ModTime.Equal(modTime) &&
		r.Engine == engine
}

// Catalog stores document records. Implementations serialize their own
// writes; callers never coordinate.
type Catalog interface {
	// Upsert inserts or replaces the record under rec.DocID. CreatedAt is
	// preserved from an existing record; UpdatedAt is set by the catalog.
	Upsert(ctx context.Context, rec Record) error
	// SetState updates only the lifecycle state and error string.
	SetState(ctx context.Context, docID string, state document.State, errMsg string) error
	// Get returns the record, with found=false on absence.
	Get(ctx context.Context, docID string) (Record, bool, error)
	// List returns all records in ascending DocID order.
	List(ctx context.Context) ([]Record, error)
	// Delete removes the record. Deleting an absent ID is not an error.
	Delete(ctx context.Context, docID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Memory is a map-backed Catalog.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewMemory creates an empty in-memory Catalog.
func NewMemory() *Memory {
	return &Memory{recs: make(map[string]Record)}
}

func (m *Memory) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := m.recs[rec.DocID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.recs[rec.DocID] = rec
	return nil
}

func (m *Memory) SetState(_ context.Context, docID string, state document.State, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[docID]
	if !ok {
		rec = Record{DocID: docID, CreatedAt: time.Now().UTC()}
	}
	rec.State = state
	rec.LastError = errMsg
	rec.UpdatedAt = time.Now().UTC()
	m.recs[docID] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, docID string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[docID]
	return rec, ok, nil
}

func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]Record, 0, len(m.recs))
	for _, rec := range m.recs {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].DocID < recs[j].DocID })
	return recs, nil
}

func (m *Memory) Delete(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, docID)
	return nil
}

func (m *Memory) Ping(_ context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}
