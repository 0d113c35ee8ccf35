package engine

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/fuzzy"
)

const (
	prefixScore     = 1.0
	wordPrefixScore = 0.8
	fuzzyFactor     = 0.6
	minSuggestScore = 0.3
)

type suggestion struct {
	term  string
	score float64
}

// Suggestions completes partial from the indexed terms. Inputs shorter than
// two characters return the most popular queries instead. Equal scores are
// ordered lexicographically.
func (e *Engine) Suggestions(partial string, limit int) []string {
	start := time.Now()
	if limit <= 0 {
		limit = e.cfg.SuggestionLimit
	}
	if e.metrics != nil {
		e.metrics.SuggestionsTotal.Inc()
	}
	if runeLen(partial) < 2 {
		return e.history.PopularQueries(limit)
	}
	p := Normalize(partial)
	if p == "" {
		return e.history.PopularQueries(limit)
	}

	var found []suggestion
	for _, term := range e.idx.AllTerms() {
		score := suggestScore(p, term, e.fuzzy)
		if score > minSuggestScore {
			found = append(found, suggestion{term, score})
		}
	}
	slices.SortFunc(found, func(a, b suggestion) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.term, b.term)
	})

	out := make([]string, 0, min(limit, len(found)))
	for _, s := range found[:min(limit, len(found))] {
		out = append(out, s.term)
	}
	e.logger.Debug("suggestions computed", "partial", partial, "count", len(out), "elapsed", time.Since(start))
	return out
}

func suggestScore(partial, term string, opts fuzzy.Options) float64 {
	if strings.HasPrefix(term, partial) {
		return prefixScore
	}
	for _, word := range strings.Fields(term) {
		if strings.HasPrefix(word, partial) {
			return wordPrefixScore
		}
	}
	return fuzzy.Score(partial, term, opts) * fuzzyFactor
}
