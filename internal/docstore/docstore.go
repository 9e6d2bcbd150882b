// Package docstore persists assembled documents (text plus page spans) keyed
// by document ID. Search result enrichment reads snippets from here, and a
// rebuild can re-index every stored document without re-running recognition.
package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
)

// Store is the assembled-document storage contract. Implementations must be
// safe for concurrent use.
type Store interface {
	// GetIndexed returns the stored document, with found=false on absence.
	GetIndexed(ctx context.Context, docID string) (document.Indexed, bool, error)
	// Put stores doc, replacing any previous version under the same ID.
	Put(ctx context.Context, doc document.Indexed) error
	// Delete removes the document. Deleting an absent ID is not an error.
	Delete(ctx context.Context, docID string) error
	// ForEach calls fn for every stored document in ascending ID order,
	// stopping on the first error.
	ForEach(ctx context.Context, fn func(document.Indexed) error) error
	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
	Close() error
}

// Memory is a map-backed Store for tests and cache-less runs.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]document.Indexed
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]document.Indexed)}
}

func (m *Memory) GetIndexed(_ context.Context, docID string) (document.Indexed, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docID]
	return doc, ok, nil
}

func (m *Memory) Put(_ context.Context, doc document.Indexed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *Memory) Delete(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, docID)
	return nil
}

func (m *Memory) ForEach(ctx context.Context, fn func(document.Indexed) error) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([]document.Indexed, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, m.docs[id])
	}
	m.mu.RUnlock()

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

func (m *Memory) Close() error {
	return nil
}
