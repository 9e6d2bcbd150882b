// Package ranker scores candidate documents with BM25. Every matched term
// carries a weight: 1.0 for an exact query term, and a discount raised to
// the edit distance for fuzzy variants, so "invoce" still finds invoices but
// an exact hit always counts for more.
package ranker

import (
	"math"
	"sort"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/index"
)

const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// TermPostings is one matched term's posting list with its match weight.
type TermPostings struct {
	Postings index.PostingList
	Weight   float64
}

type RankParams struct {
	TotalDocs    int
	AvgDocLength float64
}

// Rank scores every document present in postingsPerTerm and returns up to
// limit results ordered by descending score, ties broken by ascending DocID.
func Rank(
	postingsPerTerm map[string]TermPostings,
	params RankParams,
	docLength func(docID string) int,
	limit int,
) []ScoredDoc {
	scores := make(map[string]float64)
	for _, tp := range postingsPerTerm {
		idf := computeIDF(params.TotalDocs, len(tp.Postings))
		for _, posting := range tp.Postings {
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(docLength(posting.DocID)),
				params.AvgDocLength,
			)
			scores[posting.DocID] += tp.Weight * idf * tfNorm
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: math.Round(score*10000) / 10000,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func computeIDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
