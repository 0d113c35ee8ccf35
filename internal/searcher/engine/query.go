package engine

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/fuzzy"
)

// Filters restrict the candidate set by record metadata. Zero-valued fields
// are inactive. A record must satisfy every active filter.
type Filters struct {
	Categories  []index.Category `json:"categories,omitempty"`
	BodySystems []string         `json:"bodySystems,omitempty"`
	Verified    *bool            `json:"verified,omitempty"`
	Severity    string           `json:"severity,omitempty"`
	AgeGroups   []string         `json:"ageGroups,omitempty"`
}

func (f Filters) allows(rec *index.Record) bool {
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, rec.Category) {
		return false
	}
	if len(f.BodySystems) > 0 && !slices.ContainsFunc(f.BodySystems, func(s string) bool {
		return strings.EqualFold(s, rec.Metadata.BodySystem)
	}) {
		return false
	}
	if f.Verified != nil && *f.Verified != rec.Metadata.Verified {
		return false
	}
	if f.Severity != "" && !strings.EqualFold(f.Severity, rec.Metadata.Severity) {
		return false
	}
	if len(f.AgeGroups) > 0 && !slices.ContainsFunc(f.AgeGroups, rec.Metadata.HasAgeGroup) {
		return false
	}
	return true
}

// Personalization is optional per-user context. It only affects scores when
// supplied, so identical queries stay deterministic.
type Personalization struct {
	PreferredCategories []index.Category `json:"preferredCategories,omitempty"`
	RecentQueries       []string         `json:"recentQueries,omitempty"`
}

// Query is one search request.
type Query struct {
	Term            string
	Categories      []index.Category
	Filters         Filters
	Limit           int
	Offset          int
	Personalization *Personalization
}

// FieldHighlight lists the merged match spans for one field. Spans are rune
// offsets into the field's original text. Keyword is set for keyword fields.
type FieldHighlight struct {
	Field   string       `json:"field"`
	Keyword string       `json:"keyword,omitempty"`
	Spans   []fuzzy.Span `json:"spans"`
}

// Result is one ranked record.
type Result struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Category       index.Category   `json:"category"`
	MatchScore     float64          `json:"matchScore"`
	RelevanceScore float64          `json:"relevanceScore"`
	Score          float64          `json:"score"`
	Highlights     []FieldHighlight `json:"highlights,omitempty"`
	Metadata       index.Metadata   `json:"metadata"`
	URL            string           `json:"url,omitempty"`
	Thumbnail      string           `json:"thumbnail,omitempty"`
	LastUpdated    time.Time        `json:"lastUpdated,omitzero"`
}

// Response is the outcome of Search.
type Response struct {
	Query       string                 `json:"query"`
	Results     []Result               `json:"results"`
	TotalCount  int                    `json:"totalCount"`
	HasMore     bool                   `json:"hasMore"`
	Facets      map[index.Category]int `json:"facets"`
	Suggestions []string               `json:"suggestions"`
	ElapsedMs   float64                `json:"elapsedMs"`
	CacheHit    bool                   `json:"cacheHit"`
}

// Normalize lowercases term, drops everything but word characters, hyphens
// and whitespace, and collapses whitespace runs.
func Normalize(term string) string {
	return strings.Join(strings.Fields(tokenizer.Clean(term)), " ")
}

// cacheKeyParts renders the parts of q that influence the ranked response.
// day is the UTC calendar day of the ranking clock; recency scores move with
// it, so cached responses expire at the day boundary.
func (q Query) cacheKeyParts(normalized string, limit, offset int, generation uint64, day string) []string {
	parts := []string{
		normalized,
		"cat=" + joinCategories(q.Categories),
		"fcat=" + joinCategories(q.Filters.Categories),
		"body=" + strings.ToLower(strings.Join(q.Filters.BodySystems, ",")),
		"sev=" + strings.ToLower(q.Filters.Severity),
		"age=" + strings.ToLower(strings.Join(q.Filters.AgeGroups, ",")),
		"limit=" + strconv.Itoa(limit),
		"offset=" + strconv.Itoa(offset),
		"gen=" + strconv.FormatUint(generation, 10),
		"day=" + day,
	}
	if q.Filters.Verified != nil {
		parts = append(parts, fmt.Sprintf("verified=%t", *q.Filters.Verified))
	}
	if p := q.Personalization; p != nil {
		parts = append(parts,
			"pref="+joinCategories(p.PreferredCategories),
			"recent="+strings.Join(p.RecentQueries, "\x1e"),
		)
	}
	return parts
}

func joinCategories(cats []index.Category) string {
	s := make([]string, len(cats))
	for i, c := range cats {
		s[i] = string(c)
	}
	slices.Sort(s)
	return strings.Join(s, ",")
}
