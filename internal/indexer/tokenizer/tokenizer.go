// Package tokenizer provides text normalisation for the search index. It
// lower-cases input, splits on non-alphanumeric boundaries, and drops terms
// shorter than the configured minimum. No stemming and no stop-word removal:
// OCR output is noisy enough that the index keeps terms exactly as written,
// and the fuzzy matcher in the query path absorbs the recognition errors.
package tokenizer

import "unicode"

// Token is a single normalised term together with the byte offset of its
// first byte in the original text. Offsets index the original, not the
// lowercased form, so they stay valid for page mapping and snippets.
type Token struct {
	Term   string
	Offset int
}

// Tokenizer carries the normalisation settings shared by the indexing and
// query sides. Both must use the same instance settings or terms will not
// line up.
type Tokenizer struct {
	minLength int
}

// New returns a Tokenizer that drops terms shorter than minLength runes.
func New(minLength int) *Tokenizer {
	if minLength < 1 {
		minLength = 1
	}
	return &Tokenizer{minLength: minLength}
}

// Tokenize breaks text into lowercased tokens. A token is a maximal run of
// letters and digits; everything else is a boundary.
func (t *Tokenizer) Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/8)
	term := make([]rune, 0, 16)
	start := 0
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if len(term) == 0 {
				start = i
			}
			term = append(term, unicode.ToLower(r))
			continue
		}
		if len(term) >= t.minLength {
			tokens = append(tokens, Token{Term: string(term), Offset: start})
		}
		term = term[:0]
	}
	if len(term) >= t.minLength {
		tokens = append(tokens, Token{Term: string(term), Offset: start})
	}
	return tokens
}

// Terms returns just the normalised terms of text, in order.
func (t *Tokenizer) Terms(text string) []string {
	tokens := t.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// NormalizeTerm folds a single query word the same way document text is
// folded. It returns "" when nothing indexable remains, and only the first
// token when the word splits into several.
func (t *Tokenizer) NormalizeTerm(word string) string {
	tokens := t.Tokenize(word)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0].Term
}
