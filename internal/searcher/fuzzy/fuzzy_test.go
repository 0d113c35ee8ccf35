package fuzzy

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchStrategies(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		target   string
		strategy Strategy
		score    float64
		spans    []Span
	}{
		{"exact ignores case", "Heart", "heart", StrategyExact, 1, []Span{{0, 5}}},
		{"prefix substring", "append", "appendicitis", StrategySubstring, 0.85, []Span{{0, 6}}},
		{"inner substring", "itis", "appendicitis", StrategySubstring, 0.8, []Span{{8, 12}}},
		{"subsequence with runs", "apndx", "appendix", StrategySubsequence, 0.885, []Span{{0, 2}, {4, 6}, {7, 8}}},
		{"dropped letter", "apendicitis", "Appendicitis", StrategySubsequence, 0.95, []Span{{0, 2}, {3, 12}}},
		{"transposition", "haert", "heart", StrategyEditDistance, 0.6, []Span{{0, 5}}},
		{"word boundary", "chest pain", "pain in the chest area", StrategyWordBoundary, 0.8, []Span{{0, 4}, {12, 17}}},
		{"half the words", "chest pain", "chest discomfort", StrategyWordBoundary, 0.4, []Span{{0, 5}}},
		{"typo in partial word", "appendic", "Appendectomy", StrategyWordBoundary, 0.8, []Span{{0, 12}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Match(tt.query, tt.target, DefaultOptions())
			require.True(t, res.Matched)
			assert.Equal(t, tt.strategy, res.Strategy)
			assert.InDelta(t, tt.score, res.Score, 1e-9)
			assert.Equal(t, tt.spans, res.Spans)
		})
	}
}

func TestMatchRejects(t *testing.T) {
	tests := []struct {
		name, query, target string
	}{
		{"unrelated", "xyzw", "heart"},
		{"below threshold", "severe chest pain", "chest discomfort"},
		{"empty target", "heart", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Match(tt.query, tt.target, DefaultOptions())
			assert.False(t, res.Matched)
			assert.Zero(t, res.Score)
			assert.Empty(t, res.Spans)
		})
	}
}

func TestEmptyQueryMatchesEverything(t *testing.T) {
	res := Match("   ", "anything", DefaultOptions())
	assert.True(t, res.Matched)
	assert.Equal(t, 1.0, res.Score)
	assert.Empty(t, res.Spans)
}

func TestCaseSensitive(t *testing.T) {
	opts := DefaultOptions()
	opts.CaseSensitive = true
	res := Match("Heart", "heart", opts)
	assert.Equal(t, StrategyEditDistance, res.Strategy)
	assert.InDelta(t, 0.8, res.Score, 1e-9)
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, 1.0, Score("chest   pain", "Chest Pain", DefaultOptions()))

	opts := DefaultOptions()
	opts.NormalizeWhitespace = false
	res := Match("chest   pain", "Chest Pain", opts)
	assert.Equal(t, StrategyEditDistance, res.Strategy)
	assert.InDelta(t, 1-2.0/12, res.Score, 1e-9)
}

func TestSubstringOutranksSubsequence(t *testing.T) {
	pairs := []struct {
		query, substring, subsequence string
	}{
		{"card", "cardiology", "cxaxrxdxxx"},
		{"heart", "heartburn", "hxexaxrxt"},
		{"ulcer", "gastric ulcer", "ulxxcxexrxxxx"},
	}
	for _, p := range pairs {
		t.Run(p.query, func(t *testing.T) {
			sub := Match(p.query, p.substring, DefaultOptions())
			seq := Match(p.query, p.subsequence, DefaultOptions())
			require.Equal(t, StrategySubstring, sub.Strategy)
			require.Equal(t, StrategySubsequence, seq.Strategy)
			assert.Greater(t, sub.Score, seq.Score)
		})
	}
}

func TestSpansAreValid(t *testing.T) {
	opts := DefaultOptions()
	opts.NormalizeWhitespace = false
	queries := []string{"app", "apendix", "pain chest", "ß", "fever", "h"}
	targets := []string{"Appendix", "Chest pain, acute", "Straße", "Héart Féver", "a"}
	for _, q := range queries {
		for _, target := range targets {
			res := Match(q, target, opts)
			n := utf8.RuneCountInString(target)
			spans := MergeSpans(res.Spans)
			for i, s := range spans {
				assert.GreaterOrEqual(t, s.Start, 0, "%q in %q", q, target)
				assert.Less(t, s.Start, s.End, "%q in %q", q, target)
				assert.LessOrEqual(t, s.End, n, "%q in %q", q, target)
				if i > 0 {
					assert.Greater(t, s.Start, spans[i-1].End)
				}
			}
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"café", "cafe", 1},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "%s/%s", tt.a, tt.b)
	}
	assert.True(t, levenshteinWithin([]rune("append"), []rune("appent"), 1))
	assert.False(t, levenshteinWithin([]rune("flaw"), []rune("lawn"), 1))
}

func TestMergeSpans(t *testing.T) {
	in := []Span{{5, 8}, {0, 2}, {1, 3}, {8, 10}, {12, 12}}
	assert.Equal(t, []Span{{0, 3}, {5, 10}}, MergeSpans(in))
	assert.Equal(t, Span{5, 8}, in[0], "input is untouched")
	assert.Nil(t, MergeSpans(nil))
}

func BenchmarkMatch(b *testing.B) {
	opts := DefaultOptions()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Match("apendicitis", "Inflammation of the appendix, usually presenting with RLQ pain", opts)
	}
}

func TestPrefixTypoNeedsLongQueryWord(t *testing.T) {
	tests := []struct {
		needle, word string
		want         bool
	}{
		{"appx", "appendix", true},
		{"fevr", "feverish", true},
		{"apx", "appendix", false},
		{"flx", "fluid", false},
		{"flx", "flu", true},
		{"cut", "cat", true},
	}
	for _, tt := range tests {
		t.Run(tt.needle+"/"+tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, nearWord([]rune(tt.needle), []rune(tt.word)))
		})
	}

	short := matchWordBoundary([]rune("apx"), []rune("appendix pain"), Options{})
	assert.False(t, short.Matched)
	long := matchWordBoundary([]rune("appx"), []rune("appendix pain"), Options{})
	assert.True(t, long.Matched)
	assert.Equal(t, []Span{{0, 8}}, long.Spans)
}
