// Package fuzzy scores how well a query matches a target string and reports
// the matched character spans for highlighting. Lengths, positions and spans
// are all counted in runes.
package fuzzy

import (
	"slices"
	"strings"
	"unicode"
)

// Strategy names the rule that produced a match.
type Strategy string

const (
	StrategyNone         Strategy = ""
	StrategyEmpty        Strategy = "empty"
	StrategyExact        Strategy = "exact"
	StrategySubstring    Strategy = "substring"
	StrategySubsequence  Strategy = "subsequence"
	StrategyEditDistance Strategy = "edit_distance"
	StrategyWordBoundary Strategy = "word_boundary"
)

// Options controls matching. Both flags are applied identically to the query
// and the target before comparison.
type Options struct {
	Threshold           float64
	MaxDistance         int
	CaseSensitive       bool
	NormalizeWhitespace bool
}

// DefaultOptions returns threshold 0.4, max distance 3, case-insensitive
// matching with whitespace normalisation.
func DefaultOptions() Options {
	return Options{
		Threshold:           0.4,
		MaxDistance:         3,
		NormalizeWhitespace: true,
	}
}

// Span is a half-open rune range [Start, End) in the target.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is the outcome of one comparison.
type Result struct {
	Matched  bool     `json:"matched"`
	Score    float64  `json:"score"`
	Strategy Strategy `json:"strategy,omitempty"`
	Spans    []Span   `json:"spans,omitempty"`
}

var noMatch = Result{}

const minPrefixTypo = 4

// Match compares query against target. The first strategy scoring at or
// above the threshold wins, tried in order: exact, substring, ordered
// subsequence, bounded edit distance, word boundary. An empty query matches
// everything with score 1 and no spans.
func Match(query, target string, opts Options) Result {
	q := prepare(query, opts)
	t := prepare(target, opts)
	if len(q) == 0 {
		return Result{Matched: true, Score: 1, Strategy: StrategyEmpty}
	}
	if len(t) == 0 {
		return noMatch
	}

	if slices.Equal(q, t) {
		return Result{Matched: true, Score: 1, Strategy: StrategyExact, Spans: []Span{{0, len(t)}}}
	}

	strategies := []func(q, t []rune, opts Options) Result{
		matchSubstring,
		matchSubsequence,
		matchEditDistance,
		matchWordBoundary,
	}
	for _, strategy := range strategies {
		res := strategy(q, t, opts)
		if res.Matched && res.Score >= opts.Threshold {
			return res
		}
	}
	return noMatch
}

// Score is shorthand for Match(query, target, opts).Score.
func Score(query, target string, opts Options) float64 {
	return Match(query, target, opts).Score
}

func prepare(s string, opts Options) []rune {
	if opts.NormalizeWhitespace {
		s = strings.Join(strings.Fields(s), " ")
	}
	runes := []rune(s)
	if !opts.CaseSensitive {
		for i, r := range runes {
			runes[i] = unicode.ToLower(r)
		}
	}
	return runes
}

func matchSubstring(q, t []rune, _ Options) Result {
	at := indexRunes(t, q)
	if at < 0 {
		return noMatch
	}
	positionBonus := 0.0
	if at == 0 {
		positionBonus = 0.1
	}
	coverage := float64(len(q)) / float64(len(t))
	score := min(0.9+positionBonus, 0.7+coverage*0.3)
	return Result{
		Matched:  true,
		Score:    score,
		Strategy: StrategySubstring,
		Spans:    []Span{{at, at + len(q)}},
	}
}

// matchSubsequence requires every query rune to appear in order. Each maximal
// run of consecutively matched runes becomes one span; only runs longer than
// one rune count towards the consecutive bonus.
func matchSubsequence(q, t []rune, _ Options) Result {
	var spans []Span
	qi := 0
	for ti := 0; ti < len(t) && qi < len(q); ti++ {
		if t[ti] != q[qi] {
			continue
		}
		if n := len(spans); n > 0 && spans[n-1].End == ti {
			spans[n-1].End = ti + 1
		} else {
			spans = append(spans, Span{ti, ti + 1})
		}
		qi++
	}
	if qi < len(q) {
		return noMatch
	}

	consecutive := 0
	for _, s := range spans {
		if n := s.End - s.Start; n > 1 {
			consecutive += n
		}
	}
	matchRatio := float64(len(q)) / float64(len(t))
	// Single-rune runs are excluded; counting them would make the bonus 1 for every subsequence.
	consecutiveBonus := float64(consecutive) / float64(len(q))
	positionBonus := 0.0
	if spans[0].Start == 0 {
		positionBonus = 0.1
	}
	score := min(0.95, 0.5+matchRatio*0.2+consecutiveBonus*0.2+positionBonus)
	return Result{Matched: true, Score: score, Strategy: StrategySubsequence, Spans: spans}
}

func matchEditDistance(q, t []rune, opts Options) Result {
	if abs(len(q)-len(t)) > opts.MaxDistance {
		return noMatch
	}
	d := levenshtein(q, t)
	if d > opts.MaxDistance {
		return noMatch
	}
	score := 1 - float64(d)/float64(max(len(q), len(t)))
	res := Result{Matched: true, Score: score, Strategy: StrategyEditDistance}
	if span, ok := closestWindow(q, t); ok {
		res.Spans = []Span{span}
	}
	return res
}

// closestWindow slides a query-length window over t and returns the window
// with the lowest edit distance, provided its implied score exceeds 0.5.
func closestWindow(q, t []rune) (Span, bool) {
	width := min(len(q), len(t))
	best, bestDist := Span{}, -1
	for start := 0; start+width <= len(t); start++ {
		d := levenshtein(q, t[start:start+width])
		if bestDist < 0 || d < bestDist {
			best, bestDist = Span{start, start + width}, d
		}
	}
	if bestDist < 0 || 1-float64(bestDist)/float64(len(q)) <= 0.5 {
		return Span{}, false
	}
	return best, true
}

func matchWordBoundary(q, t []rune, _ Options) Result {
	queryWords := splitWords(q)
	if len(queryWords) == 0 {
		return noMatch
	}
	matchedQuery := make([]bool, len(queryWords))
	var spans []Span
	for _, tw := range splitWords(t) {
		word := t[tw.Start:tw.End]
		hit := false
		for i, qw := range queryWords {
			needle := q[qw.Start:qw.End]
			if indexRunes(word, needle) >= 0 || nearWord(needle, word) {
				matchedQuery[i] = true
				hit = true
			}
		}
		if hit {
			spans = append(spans, tw)
		}
	}
	matched := 0
	for _, ok := range matchedQuery {
		if ok {
			matched++
		}
	}
	if matched == 0 {
		return noMatch
	}
	score := float64(matched) / float64(len(queryWords)) * 0.8
	return Result{Matched: true, Score: score, Strategy: StrategyWordBoundary, Spans: spans}
}

// nearWord reports whether needle is within one edit of word, or of the
// equally long prefix of word when needle has at least minPrefixTypo runes.
// The prefix form lets a partially typed word with a typo reach the word.
func nearWord(needle, word []rune) bool {
	if levenshteinWithin(needle, word, 1) {
		return true
	}
	return len(needle) >= minPrefixTypo && len(word) > len(needle) &&
		levenshteinWithin(needle, word[:len(needle)], 1)
}

// splitWords returns the rune ranges of whitespace-separated words.
func splitWords(s []rune) []Span {
	var words []Span
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, Span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, Span{start, len(s)})
	}
	return words
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
