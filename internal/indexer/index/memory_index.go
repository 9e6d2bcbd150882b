package index

import (
	"sort"
	"sync"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/tokenizer"
)

// MemoryIndex is the in-memory inverted index. A single writer inserts and
// removes documents while any number of readers search and snapshot.
//
// Postings are never mutated in place: an insert builds fresh Posting values
// and a re-insert of the same document replaces them wholesale. Snapshots and
// search results may therefore share position slices with the live index.
type MemoryIndex struct {
	mu          sync.RWMutex
	index       map[string]map[string]*Posting
	docTerms    map[string][]string
	docLengths  map[string]int
	totalTokens int64
	size        int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:      make(map[string]map[string]*Posting),
		docTerms:   make(map[string][]string),
		docLengths: make(map[string]int),
	}
}

// AddDocument indexes the given tokens under docID. Re-adding a document
// replaces its previous postings, so feeding the same document twice leaves
// the index exactly as after the first time.
func (m *MemoryIndex) AddDocument(docID string, tokens []tokenizer.Token) {
	termData := make(map[string]*Posting)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Frequency: 0,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Offset)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docLengths[docID]; exists {
		m.removeLocked(docID)
	}

	terms := make([]string, 0, len(termData))
	for term, posting := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[string]*Posting)
		}
		m.index[term][docID] = posting
		m.size += postingSize(term, posting)
		terms = append(terms, term)
	}
	sort.Strings(terms)
	m.docTerms[docID] = terms
	m.docLengths[docID] = len(tokens)
	m.totalTokens += int64(len(tokens))
}

// RemoveDocument drops all postings for docID, reporting whether the
// document was present.
func (m *MemoryIndex) RemoveDocument(docID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docLengths[docID]; !exists {
		return false
	}
	m.removeLocked(docID)
	return true
}

func (m *MemoryIndex) removeLocked(docID string) {
	for _, term := range m.docTerms[docID] {
		docs := m.index[term]
		if posting, ok := docs[docID]; ok {
			m.size -= postingSize(term, posting)
			delete(docs, docID)
		}
		if len(docs) == 0 {
			delete(m.index, term)
		}
	}
	m.totalTokens -= int64(m.docLengths[docID])
	delete(m.docTerms, docID)
	delete(m.docLengths, docID)
}

// Search returns the postings for an exact term, sorted by DocID.
func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Snapshot returns every term entry sorted by term, each posting list sorted
// by DocID. The result is detached from future mutations.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Vocabulary returns all indexed terms in sorted order.
func (m *MemoryIndex) Vocabulary() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	terms := make([]string, 0, len(m.index))
	for term := range m.index {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Load replaces the index contents with a previously snapshotted state.
func (m *MemoryIndex) Load(entries []TermEntry, docLengths map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[string]*Posting, len(entries))
	m.docTerms = make(map[string][]string, len(docLengths))
	m.docLengths = make(map[string]int, len(docLengths))
	m.totalTokens = 0
	m.size = 0
	for _, entry := range entries {
		docs := make(map[string]*Posting, len(entry.Postings))
		for i := range entry.Postings {
			posting := entry.Postings[i]
			docs[posting.DocID] = &posting
			m.size += postingSize(entry.Term, &posting)
			m.docTerms[posting.DocID] = append(m.docTerms[posting.DocID], entry.Term)
		}
		m.index[entry.Term] = docs
	}
	for docID, length := range docLengths {
		m.docLengths[docID] = length
		m.totalTokens += int64(length)
	}
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docLengths)
}

// DocFrequency returns how many documents contain term.
func (m *MemoryIndex) DocFrequency(term string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index[term])
}

func (m *MemoryIndex) TermCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index)
}

func (m *MemoryIndex) DocLength(docID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docLengths[docID]
}

// DocLengths returns a copy of the per-document token counts.
func (m *MemoryIndex) DocLengths() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lengths := make(map[string]int, len(m.docLengths))
	for docID, length := range m.docLengths {
		lengths[docID] = length
	}
	return lengths
}

func (m *MemoryIndex) AvgDocLength() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.docLengths) == 0 {
		return 0
	}
	return float64(m.totalTokens) / float64(len(m.docLengths))
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[string]*Posting)
	m.docTerms = make(map[string][]string)
	m.docLengths = make(map[string]int)
	m.totalTokens = 0
	m.size = 0
}

func postingSize(term string, p *Posting) int64 {
	return int64(len(term) + len(p.DocID) + len(p.Positions)*8 + 64)
}
