// Package document defines the shared domain types flowing through the
// pipeline: raw documents, rasterized pages, assembled indexable text, and
// the per-document lifecycle states.
package document

// Document is one unit of ingestable input. Content is owned exclusively by
// the pipeline from submission until the document reaches a terminal state;
// it is released after rasterization and fingerprinting so large batches do
// not pin every source file in memory.
type Document struct {
	ID      string
	Source  string
	Content []byte
}

// PageImage is one rasterized page, written to a scoped temporary area that
// the rasterizer's cleanup func releases. It belongs to exactly one document
// and is discardable once recognition has consumed it.
type PageImage struct {
	DocumentID string
	Index      int
	Path       string
	Format     string
}

// State is a document's position in the pipeline lifecycle.
type State string

const (
	StateQueued      State = "queued"
	StateRasterizing State = "rasterizing"
	StateOCRing      State = "ocring"
	StateAssembling  State = "assembling"
	StateReady       State = "ready"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// PageSpan records where one page's text landed inside the assembled
// document text, as byte offsets [Start, End). Failed marks pages whose
// recognition was exhausted and contributed empty text.
type PageSpan struct {
	Index  int  `json:"index"`
	Start  int  `json:"start"`
	End    int  `json:"end"`
	Failed bool `json:"failed,omitempty"`
}

// Contains reports whether the byte offset falls inside this span.
func (s PageSpan) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// Indexed is the immutable, fully assembled form of a document handed to the
// index. Re-processing produces a new Indexed that supersedes the old one;
// nothing mutates an Indexed in place.
type Indexed struct {
	ID    string     `json:"id"`
	Text  string     `json:"text"`
	Pages []PageSpan `json:"pages"`
}

// PageCount returns the number of pages the document was assembled from.
func (d Indexed) PageCount() int {
	return len(d.Pages)
}

// FailedPages returns the indexes of pages that degraded to empty text.
func (d Indexed) FailedPages() []int {
	var failed []int
	for _, p := range d.Pages {
		if p.Failed {
			failed = append(failed, p.Index)
		}
	}
	return failed
}

// PageForOffset maps a byte offset in the assembled text back to the page it
// came from.
func (d Indexed) PageForOffset(offset int) (PageSpan, bool) {
	for _, p := range d.Pages {
		if p.Contains(offset) {
			return p, true
		}
	}
	return PageSpan{}, false
}
