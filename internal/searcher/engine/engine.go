// Package engine is the public query surface over an index: ranked search
// with facets and suggestions, as-you-type previews, autocomplete and the
// per-engine query history.
package engine

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/session"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/metrics"
)

const suggestionTitles = 5

// ResponseCache memoises ranked responses by key.
// *cache.QueryCache[Response] satisfies it.
type ResponseCache interface {
	GetOrCompute(ctx context.Context, key string, compute func() (*Response, error)) (*Response, bool, error)
}

// EventSink receives one event per search. *analytics.Collector satisfies it.
type EventSink interface {
	Track(event analytics.SearchEvent)
}

type Option func(*Engine)

func WithRanker(r *ranker.Ranker) Option {
	return func(e *Engine) { e.ranker = r }
}

func WithHistory(h *session.History) Option {
	return func(e *Engine) { e.history = h }
}

func WithCache(c ResponseCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithPool scores large candidate sets on pool. The pool is not owned by
// the engine.
func WithPool(p *ants.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock sets the time source used for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine answers queries against one index and owns one query history.
type Engine struct {
	idx     *index.Index
	cfg     config.SearchConfig
	fuzzy   fuzzy.Options
	ranker  *ranker.Ranker
	history *session.History
	cache   ResponseCache
	pool    *ants.Pool
	sink    EventSink
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an Engine over idx. Zero fields of cfg take their defaults.
func New(idx *index.Index, cfg config.SearchConfig, opts ...Option) *Engine {
	cfg = withDefaults(cfg)
	e := &Engine{
		idx: idx,
		cfg: cfg,
		fuzzy: fuzzy.Options{
			Threshold:   cfg.FuzzyThreshold,
			MaxDistance: cfg.MaxEditDistance,
		},
		now:    time.Now,
		logger: slog.Default().With("component", "query-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ranker == nil {
		e.ranker = ranker.New(config.DefaultRanking())
	}
	if e.history == nil {
		e.history = session.New(cfg.HistorySize, cfg.PopularCapacity)
	}
	return e
}

func withDefaults(cfg config.SearchConfig) config.SearchConfig {
	def := config.Default().Search
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.InstantLimit <= 0 {
		cfg.InstantLimit = def.InstantLimit
	}
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = def.SuggestionLimit
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = def.FuzzyThreshold
	}
	if cfg.MaxEditDistance <= 0 {
		cfg.MaxEditDistance = def.MaxEditDistance
	}
	if cfg.MatchWeight <= 0 && cfg.RelevanceWeight <= 0 {
		cfg.MatchWeight = def.MatchWeight
		cfg.RelevanceWeight = def.RelevanceWeight
	}
	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = def.ParallelThreshold
	}
	return cfg
}

// Search runs q and returns one page of ranked results. It never fails:
// an empty term yields popular queries as suggestions, no match yields
// spelling suggestions and an out-of-range offset yields an empty page.
func (e *Engine) Search(ctx context.Context, q Query) *Response {
	start := time.Now()
	normalized := Normalize(q.Term)
	if normalized == "" {
		resp := &Response{
			Query:       q.Term,
			Results:     []Result{},
			Facets:      map[index.Category]int{},
			Suggestions: e.history.PopularQueries(e.cfg.SuggestionLimit),
		}
		e.finish(ctx, "empty", q.Term, normalized, resp, start)
		return resp
	}

	limit, offset := e.page(q.Limit, q.Offset)
	compute := func() (*Response, error) {
		return e.rank(q, normalized, limit, offset), nil
	}

	var resp *Response
	if e.cache != nil {
		day := e.now().UTC().Format(time.DateOnly)
		key := cache.Key(q.cacheKeyParts(normalized, limit, offset, e.idx.Generation(), day)...)
		cached, hit, err := e.cache.GetOrCompute(ctx, key, compute)
		if err != nil {
			logger.FromContext(ctx).Warn("response cache failed, computing directly", "error", err)
			resp, _ = compute()
		} else {
			cp := *cached
			cp.CacheHit = hit
			resp = &cp
		}
	} else {
		resp, _ = compute()
	}
	resp.Query = q.Term

	if resp.TotalCount == 0 {
		resp.Suggestions = e.Suggestions(q.Term, e.cfg.SuggestionLimit)
	}
	e.history.Record(q.Term)
	e.finish(ctx, "search", q.Term, normalized, resp, start)
	return resp
}

// rank runs the deterministic part of Search: filtering, scoring, ordering,
// paging, facets and title suggestions.
func (e *Engine) rank(q Query, normalized string, limit, offset int) *Response {
	candidates := e.candidates(q)
	scored := e.scoreAll(normalized, candidates, q.Personalization)
	slices.SortFunc(scored, func(a, b Result) int {
		return ranker.Compare(a.Score, a.ID, b.Score, b.ID)
	})

	total := len(scored)
	facets := make(map[index.Category]int)
	for _, r := range scored {
		facets[r.Category]++
	}

	pageResults := []Result{}
	if offset < total {
		pageResults = slices.Clone(scored[offset:min(offset+limit, total)])
	}

	var suggestions []string
	for _, r := range scored[:min(suggestionTitles, total)] {
		if Normalize(r.Title) == normalized || slices.Contains(suggestions, r.Title) {
			continue
		}
		suggestions = append(suggestions, r.Title)
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	return &Response{
		Results:     pageResults,
		TotalCount:  total,
		HasMore:     offset+limit < total,
		Facets:      facets,
		Suggestions: suggestions,
	}
}

func (e *Engine) candidates(q Query) []index.Record {
	var recs []index.Record
	if len(q.Categories) == 1 {
		recs = e.idx.GetByCategory(q.Categories[0])
	} else {
		recs = e.idx.GetAll()
	}
	out := recs[:0]
	for i := range recs {
		rec := &recs[i]
		if len(q.Categories) > 0 && !slices.Contains(q.Categories, rec.Category) {
			continue
		}
		if !q.Filters.allows(rec) {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// InstantSearch scores titles only and skips filters, facets and history.
// Results are ordered by title match score, then id.
func (e *Engine) InstantSearch(ctx context.Context, term string, limit int) []Result {
	start := time.Now()
	if limit <= 0 {
		limit = e.cfg.InstantLimit
	}
	normalized := Normalize(term)
	if normalized == "" {
		return []Result{}
	}

	var results []Result
	for _, rec := range e.idx.GetAll() {
		m := fuzzy.Match(normalized, rec.Title, e.fuzzy)
		if !m.Matched {
			continue
		}
		r := newResult(&rec)
		r.MatchScore = m.Score
		r.Score = m.Score
		r.Highlights = highlights("title", "", m)
		results = append(results, r)
	}
	slices.SortFunc(results, func(a, b Result) int {
		return ranker.Compare(a.Score, a.ID, b.Score, b.ID)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []Result{}
	}
	e.observe("instant", len(results), start)
	logger.FromContext(ctx).Debug("instant search", "term", term, "results", len(results))
	return results
}

// SearchCategory runs Search restricted to one category and returns only the
// results.
func (e *Engine) SearchCategory(ctx context.Context, term string, category index.Category, limit int) []Result {
	resp := e.Search(ctx, Query{
		Term:    term,
		Filters: Filters{Categories: []index.Category{category}},
		Limit:   limit,
	})
	return resp.Results
}

// RecentSearches returns up to limit recent queries, newest first.
func (e *Engine) RecentSearches(limit int) []string {
	return e.history.Recent(limit)
}

// PopularSearches returns up to limit queries with their counts.
func (e *Engine) PopularSearches(limit int) []session.QueryCount {
	return e.history.Popular(limit)
}

func (e *Engine) ClearHistory() {
	e.history.Clear()
	e.logger.Info("search history cleared")
}

// page applies the default limit. Larger limits are honoured as given so a
// page of 2k always equals two consecutive pages of k.
func (e *Engine) page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	return limit, max(offset, 0)
}

func (e *Engine) finish(ctx context.Context, kind, term, normalized string, resp *Response, start time.Time) {
	elapsed := time.Since(start)
	resp.ElapsedMs = float64(elapsed.Microseconds()) / 1000
	e.observe(kind, resp.TotalCount, start)
	if e.metrics != nil && kind == "search" {
		e.metrics.SearchResultsCount.Observe(float64(resp.TotalCount))
	}

	logger.FromContext(ctx).Debug("query executed",
		"query", term,
		"normalized", normalized,
		"total", resp.TotalCount,
		"returned", len(resp.Results),
		"cache_hit", resp.CacheHit,
		"elapsed", elapsed,
	)

	if e.sink == nil || kind != "search" {
		return
	}
	eventType := analytics.EventSearch
	if resp.TotalCount == 0 {
		eventType = analytics.EventZeroResult
	}
	e.sink.Track(analytics.SearchEvent{
		Type:       eventType,
		Query:      term,
		Normalized: normalized,
		TotalHits:  resp.TotalCount,
		Returned:   len(resp.Results),
		LatencyMs:  elapsed.Milliseconds(),
		CacheHit:   resp.CacheHit,
		Timestamp:  e.now().UTC(),
		RequestID:  logger.RequestID(ctx),
	})
}

func (e *Engine) observe(kind string, total int, start time.Time) {
	if e.metrics == nil {
		return
	}
	outcome := "hit"
	if total == 0 {
		outcome = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(kind, outcome).Inc()
	e.metrics.SearchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
