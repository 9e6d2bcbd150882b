// Package parser turns raw query text into a normalized query plan. Words
// run through the same tokenizer as document text, so a query term always
// looks exactly like the index term it should match. A leading '-' excludes
// a word: "invoice -draft" finds documents mentioning invoice that never
// mention draft.
package parser

import (
	"strings"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/tokenizer"
)

type QueryPlan struct {
	Terms        []string
	ExcludeTerms []string
	RawQuery     string
}

func Parse(query string, tok *tokenizer.Tokenizer) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		RawQuery:     query,
	}
	for _, word := range strings.Fields(query) {
		if rest, ok := strings.CutPrefix(word, "-"); ok {
			for _, token := range tok.Tokenize(rest) {
				plan.ExcludeTerms = append(plan.ExcludeTerms, token.Term)
			}
			continue
		}
		for _, token := range tok.Tokenize(word) {
			plan.Terms = append(plan.Terms, token.Term)
		}
	}
	return plan
}
