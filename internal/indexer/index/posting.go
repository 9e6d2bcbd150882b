package index

// Posting records one document's occurrences of a term. Positions are byte
// offsets into the document's assembled text, which is what lets a match be
// traced back to the page it appeared on.
type Posting struct {
	DocID     string
	Frequency int
	Positions []int
}

type PostingList []Posting

// TermEntry pairs a term with its full posting list, sorted by DocID.
type TermEntry struct {
	Term     string
	Postings PostingList
}
