// Package session keeps the per-engine query history: an ordered list of
// recent queries and a bounded table of query popularity counts.
package session

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultHistorySize     = 100
	DefaultPopularCapacity = 1000
)

// QueryCount is one entry of the popularity table.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// History is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	recent  []string
	size    int
	popular *lru.Cache[string, int64]
}

// New creates a History holding at most historySize recent queries and
// counting at most popularCapacity distinct queries; the least recently
// searched query is forgotten first.
func New(historySize, popularCapacity int) *History {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if popularCapacity <= 0 {
		popularCapacity = DefaultPopularCapacity
	}
	popular, _ := lru.New[string, int64](popularCapacity)
	return &History{
		recent:  make([]string, 0, historySize),
		size:    historySize,
		popular: popular,
	}
}

// Record moves query to the front of the recent list, dropping any earlier
// occurrence, and increments its popularity count. Blank queries are ignored.
func (h *History) Record(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if i := slices.Index(h.recent, query); i >= 0 {
		h.recent = slices.Delete(h.recent, i, i+1)
	}
	h.recent = slices.Insert(h.recent, 0, query)
	if len(h.recent) > h.size {
		h.recent = h.recent[:h.size]
	}

	count, _ := h.popular.Peek(query)
	h.popular.Add(query, count+1)
}

// Recent returns up to limit queries, newest first. A non-positive limit
// returns all of them.
func (h *History) Recent(limit int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(h.recent[:n])
}

// Popular returns up to limit queries ordered by count descending, then by
// query text.
func (h *History) Popular(limit int) []QueryCount {
	h.mu.Lock()
	counts := make([]QueryCount, 0, h.popular.Len())
	for _, q := range h.popular.Keys() {
		if c, ok := h.popular.Peek(q); ok {
			counts = append(counts, QueryCount{Query: q, Count: c})
		}
	}
	h.mu.Unlock()

	slices.SortFunc(counts, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// PopularQueries is Popular without the counts.
func (h *History) PopularQueries(limit int) []string {
	counts := h.Popular(limit)
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Query
	}
	return out
}

// Clear forgets all history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = h.recent[:0]
	h.popular.Purge()
}
