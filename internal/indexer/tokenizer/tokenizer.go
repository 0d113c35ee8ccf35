// Package tokenizer provides text tokenisation for the term index.
// It lower-cases input, keeps only word characters, whitespace and hyphens,
// splits on whitespace, bounds token length, optionally removes stop-words
// and optionally applies a list-based suffix stemmer.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// suffixes is ordered longest first; the first match is the longest one.
var suffixes = []string{
	"ational", "ization", "fulness", "iveness", "ousness",
	"tional", "ations",
	"ation", "ments", "ness", "ment", "able", "ible", "ical",
	"ing", "ies", "ous", "ful", "ity",
	"ed", "es", "ly", "al",
	"s",
}

const minStemLength = 3

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Options controls the tokenisation pipeline.
type Options struct {
	MinLength       int
	MaxLength       int
	RemoveStopWords bool
	Stem            bool
}

// DefaultOptions keeps tokens of 2..50 runes and removes stop-words without
// stemming.
func DefaultOptions() Options {
	return Options{
		MinLength:       2,
		MaxLength:       50,
		RemoveStopWords: true,
	}
}

// Tokenize breaks text into normalised Tokens using DefaultOptions.
func Tokenize(text string) []Token {
	return TokenizeWith(text, DefaultOptions())
}

// TokenizeWith breaks text into normalised Tokens using opts.
func TokenizeWith(text string, opts Options) []Token {
	words := strings.Fields(Clean(text))
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if n < opts.MinLength || (opts.MaxLength > 0 && n > opts.MaxLength) {
			continue
		}
		if opts.RemoveStopWords && IsStopWord(word) {
			continue
		}
		if opts.Stem {
			word = Stem(word)
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms returns only the term strings of TokenizeWith(text, opts).
func Terms(text string, opts Options) []string {
	tokens := TokenizeWith(text, opts)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Clean lower-cases text and replaces every rune that is not a letter,
// digit, underscore, hyphen or whitespace. Removed runes are dropped rather
// than replaced, so "don't" becomes "dont".
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if IsWordRune(r) || r == '-' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsWordRune reports whether r counts as a word character.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// IsStopWord reports whether word is in the fixed stop-word set.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// Stem removes the longest suffix in the priority list when at least three
// runes remain. Words ending in "ss" keep their final "s".
func Stem(word string) string {
	for _, suffix := range suffixes {
		if !strings.HasSuffix(word, suffix) {
			continue
		}
		if suffix == "s" && strings.HasSuffix(word, "ss") {
			return word
		}
		stem := word[:len(word)-len(suffix)]
		if utf8.RuneCountInString(stem) >= minStemLength {
			return stem
		}
		return word
	}
	return word
}
