package index

import (
	"slices"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/errors"
)

// Category is one of the closed set of content families.
type Category string

const (
	CategoryAnatomy      Category = "anatomy"
	CategoryConditions   Category = "conditions"
	CategoryMedications  Category = "medications"
	CategorySymptoms     Category = "symptoms"
	CategoryLabTests     Category = "lab_tests"
	CategoryProcedures   Category = "procedures"
	CategoryEncyclopedia Category = "encyclopedia"
	CategoryEducational  Category = "educational"
)

var categories = []Category{
	CategoryAnatomy,
	CategoryConditions,
	CategoryMedications,
	CategorySymptoms,
	CategoryLabTests,
	CategoryProcedures,
	CategoryEncyclopedia,
	CategoryEducational,
}

// Categories returns the closed category set in declaration order.
func Categories() []Category {
	return slices.Clone(categories)
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	return slices.Contains(categories, c)
}

// Validate reports why r cannot be stored: a blank id or a category outside
// the closed set. The error wraps apperrors.ErrInvalidInput.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return apperrors.Invalid("record id is required")
	}
	if !r.Category.Valid() {
		return apperrors.Invalid("record %q has unknown category %q", r.ID, r.Category)
	}
	return nil
}

// Metadata carries the optional per-record signals used for filtering and
// ranking. Every field has a usable zero value: absent popularity is 0,
// absent verification is false, absent strings are empty and absent age
// groups are nil. Extra keeps producer keys the engine does not interpret.
type Metadata struct {
	Popularity float64           `json:"popularity,omitempty" yaml:"popularity,omitempty"`
	Verified   bool              `json:"verified,omitempty" yaml:"verified,omitempty"`
	Severity   string            `json:"severity,omitempty" yaml:"severity,omitempty"`
	BodySystem string            `json:"bodySystem,omitempty" yaml:"bodySystem,omitempty"`
	AgeGroups  []string          `json:"ageGroups,omitempty" yaml:"ageGroups,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// HasAgeGroup reports whether group is listed, ignoring case.
func (m Metadata) HasAgeGroup(group string) bool {
	for _, g := range m.AgeGroups {
		if strings.EqualFold(g, group) {
			return true
		}
	}
	return false
}

// Record is one searchable unit of content.
type Record struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Category    Category  `json:"category" yaml:"category"`
	Keywords    []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Content     string    `json:"content,omitempty" yaml:"content,omitempty"`
	Metadata    Metadata  `json:"metadata" yaml:"metadata"`
	URL         string    `json:"url,omitempty" yaml:"url,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitzero" yaml:"lastUpdated,omitempty"`
}

// indexText is the text the term index is built from.
func (r *Record) indexText() string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteByte(' ')
	b.WriteString(r.Description)
	b.WriteByte(' ')
	b.WriteString(r.Content)
	for _, kw := range r.Keywords {
		b.WriteByte(' ')
		b.WriteString(kw)
	}
	return b.String()
}

// sameText reports whether r and other would tokenize identically.
func (r *Record) sameText(other *Record) bool {
	return r.Title == other.Title &&
		r.Description == other.Description &&
		r.Content == other.Content &&
		slices.Equal(r.Keywords, other.Keywords)
}

// clone returns a deep copy so callers never share slices or maps with the
// index.
func (r Record) clone() Record {
	r.Keywords = slices.Clone(r.Keywords)
	r.Metadata.AgeGroups = slices.Clone(r.Metadata.AgeGroups)
	if r.Metadata.Extra != nil {
		extra := make(map[string]string, len(r.Metadata.Extra))
		for k, v := range r.Metadata.Extra {
			extra[k] = v
		}
		r.Metadata.Extra = extra
	}
	return r
}

// approxSize estimates the in-memory footprint of the record's fields.
func (r *Record) approxSize() int64 {
	n := len(r.ID) + len(r.Title) + len(r.Description) + len(r.Category) +
		len(r.Content) + len(r.URL) + len(r.Thumbnail) +
		len(r.Metadata.Severity) + len(r.Metadata.BodySystem)
	for _, kw := range r.Keywords {
		n += len(kw)
	}
	for _, g := range r.Metadata.AgeGroups {
		n += len(g)
	}
	for k, v := range r.Metadata.Extra {
		n += len(k) + len(v)
	}
	return int64(n + 128)
}
