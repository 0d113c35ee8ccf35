package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/ranker"
)

const (
	titleWeight       = 0.5
	descriptionWeight = 0.3
	keywordWeight     = 0.2
)

// scoreAll scores every candidate and drops the ones that match no field.
// Large candidate sets are split into chunks and scored on the worker pool;
// each chunk writes only its own slots, and the caller sorts afterwards.
func (e *Engine) scoreAll(normalized string, recs []index.Record, p *Personalization) []Result {
	now := e.now()
	slots := make([]*Result, len(recs))
	scoreRange := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if r, ok := e.scoreRecord(normalized, &recs[i], p, now); ok {
				slots[i] = &r
			}
		}
	}

	if e.pool == nil || len(recs) < e.cfg.ParallelThreshold {
		scoreRange(0, len(recs))
	} else {
		e.scoreParallel(len(recs), scoreRange)
	}

	results := make([]Result, 0, len(recs))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results
}

func (e *Engine) scoreParallel(n int, scoreRange func(lo, hi int)) {
	workers := max(e.pool.Cap(), 1)
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			scoreRange(lo, hi)
		}
		if err := e.pool.Submit(task); err != nil {
			e.logger.Warn("scoring pool rejected task, scoring inline", "error", err)
			task()
		}
	}
	wg.Wait()
}

// scoreRecord matches the query against title, description and the best
// keyword, then folds the weighted match score with the record's relevance.
func (e *Engine) scoreRecord(normalized string, rec *index.Record, p *Personalization, now time.Time) (Result, bool) {
	title := fuzzy.Match(normalized, rec.Title, e.fuzzy)
	desc := fuzzy.Match(normalized, rec.Description, e.fuzzy)
	var (
		keyword     fuzzy.Result
		bestKeyword string
	)
	for _, kw := range rec.Keywords {
		if m := fuzzy.Match(normalized, kw, e.fuzzy); m.Score > keyword.Score {
			keyword, bestKeyword = m, kw
		}
	}
	if !title.Matched && !desc.Matched && !keyword.Matched {
		return Result{}, false
	}

	match := title.Score*titleWeight + desc.Score*descriptionWeight + keyword.Score*keywordWeight
	relevance := e.ranker.Score(ranker.Factors{
		MatchScore:      match,
		Popularity:      rec.Metadata.Popularity,
		LastUpdated:     rec.LastUpdated,
		Verified:        rec.Metadata.Verified,
		Category:        rec.Category,
		Personalization: e.personalize(rec, p),
	}, now)

	r := newResult(rec)
	r.MatchScore = match
	r.RelevanceScore = relevance
	r.Score = match*e.cfg.MatchWeight + relevance*e.cfg.RelevanceWeight
	r.Highlights = slices.Concat(
		highlights("title", "", title),
		highlights("description", "", desc),
		highlights("keyword", bestKeyword, keyword),
	)
	return r, true
}

func (e *Engine) personalize(rec *index.Record, p *Personalization) *ranker.Personalization {
	if p == nil {
		return nil
	}
	out := &ranker.Personalization{
		PreferredCategory: slices.Contains(p.PreferredCategories, rec.Category),
	}
	for _, q := range p.RecentQueries {
		if n := Normalize(q); n != "" && fuzzy.Match(n, rec.Title, e.fuzzy).Matched {
			out.LinkedToRecent = true
			break
		}
	}
	return out
}

func highlights(field, keyword string, m fuzzy.Result) []FieldHighlight {
	spans := fuzzy.MergeSpans(m.Spans)
	if len(spans) == 0 {
		return nil
	}
	return []FieldHighlight{{Field: field, Keyword: keyword, Spans: spans}}
}

func newResult(rec *index.Record) Result {
	return Result{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		Category:    rec.Category,
		Metadata:    rec.Metadata,
		URL:         rec.URL,
		Thumbnail:   rec.Thumbnail,
		LastUpdated: rec.LastUpdated,
	}
}
