package document

import "strings"

// PageBoundaryMarker separates page texts in the assembled document. Form
// feed is the conventional page separator and splits cleanly during
// tokenization, so spans stay disjoint.
const PageBoundaryMarker = "\n\f"

// PageText is one page's contribution to assembly, slotted by Index so the
// result is ordered by page regardless of recognition completion order.
type PageText struct {
	Index  int
	Text   string
	Failed bool
}

// Assemble concatenates page texts in page-index order with boundary markers
// and computes the byte-offset span of each page. Input must already be
// sorted by Index with no gaps; the pipeline guarantees that by slotting
// results into a fixed slice.
func Assemble(id string, pages []PageText) Indexed {
	var b strings.Builder
	spans := make([]PageSpan, 0, len(pages))
	for i, p := range pages {
		if i > 0 {
			b.WriteString(PageBoundaryMarker)
		}
		start := b.Len()
		b.WriteString(p.Text)
		spans = append(spans, PageSpan{
			Index:  p.Index,
			Start:  start,
			End:    b.Len(),
			Failed: p.Failed,
		})
	}
	return Indexed{
		ID:    id,
		Text:  b.String(),
		Pages: spans,
	}
}
