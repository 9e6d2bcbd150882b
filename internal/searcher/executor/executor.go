// Package executor runs query plans against the index. Each query term is
// expanded to nearby index terms within a bounded edit distance, which is
// what makes a search for "invoce" find the invoices OCR actually read as
// "invoice" (or the other way round, when OCR got it wrong).
package executor

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/parser"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher/ranker"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

const snippetRadius = 80

// TermMatch is one index term matched for a query term.
type TermMatch struct {
	Term     string `json:"term"`
	Distance int    `json:"distance"`
	DocFreq  int    `json:"doc_freq"`
}

// SearchHit is one ranked document with the pages the match came from.
// Pages holds 1-based page numbers, the way a reader counts them.
type SearchHit struct {
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Pages   []int   `json:"pages,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
}

type SearchResult struct {
	Query      string                 `json:"query"`
	TotalHits  int                    `json:"total_hits"`
	Results    []SearchHit            `json:"results"`
	Expansions map[string][]TermMatch `json:"expansions,omitempty"`
}

// DocResolver looks up assembled documents so hits can carry page numbers
// and snippets. A nil resolver degrades hits to bare IDs and scores.
type DocResolver interface {
	GetIndexed(ctx context.Context, docID string) (document.Indexed, bool, error)
}

type Executor struct {
	engine   *indexer.Engine
	resolver DocResolver
	cfg      config.SearchConfig
	logger   *slog.Logger
}

func New(engine *indexer.Engine, resolver DocResolver, cfg config.SearchConfig) *Executor {
	return &Executor{
		engine:   engine,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.WithComponent("query-executor"),
	}
}

// Execute runs plan and returns up to limit ranked hits. With fuzzy off,
// query terms match the index verbatim only.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int, fuzzy bool) (*SearchResult, error) {
	if len(plan.Terms) == 0 {
		return &SearchResult{
			Query:   plan.RawQuery,
			Results: []SearchHit{},
		}, nil
	}

	// Expand every query term and gather postings per matched index term.
	// When two query terms reach the same index term, the better weight
	// wins so an exact match is never diluted by a fuzzy one.
	postingsPerTerm := make(map[string]ranker.TermPostings)
	expansions := make(map[string][]TermMatch)
	for _, term := range plan.Terms {
		matches := e.expand(term, fuzzy)
		if len(matches) > 0 {
			expansions[term] = matches
		}
		for _, match := range matches {
			weight := math.Pow(e.cfg.FuzzyDiscount, float64(match.Distance))
			if existing, ok := postingsPerTerm[match.Term]; ok && existing.Weight >= weight {
				continue
			}
			postingsPerTerm[match.Term] = ranker.TermPostings{
				Postings: e.engine.Postings(match.Term),
				Weight:   weight,
			}
		}
	}

	// Exclusions are exact: a fuzzy exclusion would silently drop
	// documents the user never asked to hide.
	excludeDocIDs := make(map[string]struct{})
	for _, term := range plan.ExcludeTerms {
		for _, p := range e.engine.Postings(term) {
			excludeDocIDs[p.DocID] = struct{}{}
		}
	}

	candidates := make(map[string]struct{})
	filtered := make(map[string]ranker.TermPostings, len(postingsPerTerm))
	for term, tp := range postingsPerTerm {
		kept := tp.Postings
		if len(excludeDocIDs) > 0 {
			kept = kept[:0:0]
			for _, p := range tp.Postings {
				if _, excluded := excludeDocIDs[p.DocID]; !excluded {
					kept = append(kept, p)
				}
			}
		}
		if len(kept) == 0 {
			continue
		}
		filtered[term] = ranker.TermPostings{Postings: kept, Weight: tp.Weight}
		for _, p := range kept {
			candidates[p.DocID] = struct{}{}
		}
	}

	params := ranker.RankParams{
		TotalDocs:    e.engine.DocCount(),
		AvgDocLength: e.engine.AvgDocLength(),
	}
	ranked := ranker.Rank(filtered, params, e.engine.DocLength, limit)

	hits := make([]SearchHit, 0, len(ranked))
	for _, doc := range ranked {
		hits = append(hits, e.enrich(ctx, doc, filtered))
	}

	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"matched_terms", len(filtered),
		"candidates", len(candidates),
		"results", len(hits),
	)
	return &SearchResult{
		Query:      plan.RawQuery,
		TotalHits:  len(candidates),
		Results:    hits,
		Expansions: expansions,
	}, nil
}

// expand returns the index terms matching a query term: the term itself when
// indexed, plus, if fuzzy is on, up to MaxExpansions nearby terms within
// MaxEditDistance.
func (e *Executor) expand(term string, fuzzy bool) []TermMatch {
	var matches []TermMatch
	if df := e.engine.DocFreq(term); df > 0 {
		matches = append(matches, TermMatch{Term: term, Distance: 0, DocFreq: df})
	}
	maxDist := e.cfg.MaxEditDistance
	if !fuzzy || maxDist <= 0 || e.cfg.MaxExpansions <= 0 {
		return matches
	}

	termRunes := utf8.RuneCountInString(term)
	var fuzzyMatches []TermMatch
	for _, candidate := range e.engine.Vocabulary() {
		if candidate == term {
			continue
		}
		// Length difference is a lower bound on edit distance.
		lengthDiff := utf8.RuneCountInString(candidate) - termRunes
		if lengthDiff > maxDist || lengthDiff < -maxDist {
			continue
		}
		distance := levenshtein.ComputeDistance(term, candidate)
		if distance > maxDist {
			continue
		}
		fuzzyMatches = append(fuzzyMatches, TermMatch{
			Term:     candidate,
			Distance: distance,
			DocFreq:  e.engine.DocFreq(candidate),
		})
	}
	sort.Slice(fuzzyMatches, func(i, j int) bool {
		if fuzzyMatches[i].Distance != fuzzyMatches[j].Distance {
			return fuzzyMatches[i].Distance < fuzzyMatches[j].Distance
		}
		if fuzzyMatches[i].DocFreq != fuzzyMatches[j].DocFreq {
			return fuzzyMatches[i].DocFreq > fuzzyMatches[j].DocFreq
		}
		return fuzzyMatches[i].Term < fuzzyMatches[j].Term
	})
	if len(fuzzyMatches) > e.cfg.MaxExpansions {
		fuzzyMatches = fuzzyMatches[:e.cfg.MaxExpansions]
	}
	return append(matches, fuzzyMatches...)
}

// enrich resolves the pages a hit matched on and cuts a snippet around the
// first match.
func (e *Executor) enrich(ctx context.Context, doc ranker.ScoredDoc, filtered map[string]ranker.TermPostings) SearchHit {
	hit := SearchHit{DocID: doc.DocID, Score: doc.Score}
	if e.resolver == nil {
		return hit
	}
	indexed, found, err := e.resolver.GetIndexed(ctx, doc.DocID)
	if err != nil {
		e.logger.Warn("resolving document failed", "doc_id", doc.DocID, "error", err)
		return hit
	}
	if !found {
		return hit
	}

	firstOffset := -1
	pages := make(map[int]struct{})
	for _, tp := range filtered {
		postings := tp.Postings
		i := sort.Search(len(postings), func(i int) bool {
			return postings[i].DocID >= doc.DocID
		})
		if i >= len(postings) || postings[i].DocID != doc.DocID {
			continue
		}
		for _, offset := range postings[i].Positions {
			if span, ok := indexed.PageForOffset(offset); ok {
				pages[span.Index+1] = struct{}{}
			}
			if firstOffset < 0 || offset < firstOffset {
				firstOffset = offset
			}
		}
	}

	hit.Pages = make([]int, 0, len(pages))
	for page := range pages {
		hit.Pages = append(hit.Pages, page)
	}
	sort.Ints(hit.Pages)
	if firstOffset >= 0 {
		hit.Snippet = snippet(indexed.Text, firstOffset)
	}
	return hit
}

// snippet cuts a whitespace-normalized window around offset, snapped to rune
// boundaries.
func snippet(text string, offset int) string {
	if offset >= len(text) {
		return ""
	}
	start := offset - snippetRadius
	if start < 0 {
		start = 0
	}
	end := offset + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return strings.Join(strings.Fields(text[start:end]), " ")
}
