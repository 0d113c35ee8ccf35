package index

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/logger"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestIndex(opts ...Option) *Index {
	base := []Option{WithClock(func() time.Time { return fixedNow }), WithLogger(logger.Discard())}
	return New(append(base, opts...)...)
}

func appendicitis() Record {
	return Record{
		ID:          "a1",
		Title:       "Appendicitis",
		Description: "Inflammation of the appendix",
		Category:    CategoryConditions,
		Keywords:    []string{"appendix", "RLQ pain"},
		Metadata:    Metadata{Popularity: 500, Verified: true, BodySystem: "gastrointestinal", AgeGroups: []string{"adult"}},
		LastUpdated: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
	}
}

func appendectomy() Record {
	return Record{
		ID:       "a2",
		Title:    "Appendectomy",
		Category: CategoryProcedures,
		Keywords: []string{"surgery"},
		Metadata: Metadata{Popularity: 50},
	}
}

func idsOf(postings PostingList) []string {
	ids := make([]string, 0, len(postings))
	for _, p := range postings {
		ids = append(ids, p.DocID)
	}
	return ids
}

func TestAddIndexesAllTextFields(t *testing.T) {
	idx := newTestIndex()
	rec := appendicitis()
	rec.Content = "Surgical emergency"
	idx.Add(rec)

	for _, term := range []string{"appendicitis", "inflammation", "appendix", "rlq", "pain", "surgical", "emergency"} {
		assert.Equal(t, []string{"a1"}, idsOf(idx.Lookup(term)), term)
	}
	assert.Nil(t, idx.Lookup("the"), "stop words are not indexed")

	got, ok := idx.GetByID("a1")
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestLookupCountsOccurrences(t *testing.T) {
	idx := newTestIndex()
	idx.Add(Record{ID: "h", Title: "Heart", Description: "heart muscle and heart valves", Category: CategoryAnatomy})

	postings := idx.Lookup("heart")
	require.Len(t, postings, 1)
	assert.Equal(t, 3, postings[0].Frequency)
	assert.Equal(t, []int{0, 1, 3}, postings[0].Positions)
}

func TestReAddReplacesWithoutStaleTerms(t *testing.T) {
	idx := newTestIndex()
	idx.Add(appendicitis())

	replacement := appendicitis()
	replacement.Title = "Acute abdomen"
	replacement.Description = ""
	replacement.Keywords = nil
	idx.Add(replacement)

	assert.Nil(t, idx.Lookup("appendicitis"))
	assert.Nil(t, idx.Lookup("appendix"))
	assert.Equal(t, []string{"a1"}, idsOf(idx.Lookup("acute")))
	assert.Equal(t, 1, idx.Len())
	assert.NotContains(t, idx.AllTerms(), "inflammation")
}

func TestRemovePrunesTerms(t *testing.T) {
	idx := newTestIndex()
	idx.AddMany([]Record{appendicitis(), appendectomy()})

	assert.True(t, idx.Remove("a1"))
	assert.False(t, idx.Remove("a1"))
	assert.False(t, idx.Remove("missing"))

	for _, term := range idx.AllTerms() {
		for _, p := range idx.Lookup(term) {
			assert.Equal(t, "a2", p.DocID, "orphan id under %q", term)
		}
	}
	assert.NotContains(t, idx.AllTerms(), "appendicitis")
	assert.Contains(t, idx.AllTerms(), "appendectomy")

	_, ok := idx.GetByID("a1")
	assert.False(t, ok)
}

func TestUpdateEquivalentToRemoveThenAdd(t *testing.T) {
	base := []Record{appendicitis(), appendectomy()}
	changed := appendicitis()
	changed.Description = "Blocked appendix with fever"
	changed.Keywords = []string{"fever"}

	viaUpdate := newTestIndex()
	viaUpdate.AddMany(base)
	viaUpdate.Update(changed)

	viaRemoveAdd := newTestIndex()
	viaRemoveAdd.AddMany(base)
	viaRemoveAdd.Remove(changed.ID)
	viaRemoveAdd.Add(changed)

	assert.Equal(t, viaRemoveAdd.Snapshot(), viaUpdate.Snapshot())
	assert.Equal(t, viaRemoveAdd.GetAll(), viaUpdate.GetAll())
}

func TestUpdateMetadata(t *testing.T) {
	idx := newTestIndex()
	idx.Add(appendicitis())
	before := idx.Snapshot()

	meta := appendicitis()
	meta.Metadata.Popularity = 9000
	meta.Metadata.Severity = "high"
	require.NoError(t, idx.UpdateMetadata(meta))

	assert.Equal(t, before, idx.Snapshot())
	got, _ := idx.GetByID("a1")
	assert.Equal(t, 9000.0, got.Metadata.Popularity)
	assert.Equal(t, "high", got.Metadata.Severity)

	t.Run("text change falls back to full update", func(t *testing.T) {
		textChange := meta
		textChange.Title = "Perforated appendix"
		require.NoError(t, idx.UpdateMetadata(textChange))
		assert.Nil(t, idx.Lookup("appendicitis"))
		assert.Equal(t, []string{"a1"}, idsOf(idx.Lookup("perforated")))
	})

	t.Run("unknown id", func(t *testing.T) {
		err := idx.UpdateMetadata(Record{ID: "nope", Category: CategoryAnatomy})
		assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
	})
}

func TestRebuildReproducesTerms(t *testing.T) {
	idx := newTestIndex()
	idx.AddMany([]Record{appendicitis(), appendectomy()})
	before := idx.Snapshot()

	idx.Rebuild()
	assert.Equal(t, before, idx.Snapshot())
}

func TestReadAccessors(t *testing.T) {
	idx := newTestIndex()
	idx.AddMany([]Record{appendectomy(), appendicitis()})

	all := idx.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "a1", all[0].ID, "GetAll is ordered by id")

	procedures := idx.GetByCategory(CategoryProcedures)
	require.Len(t, procedures, 1)
	assert.Equal(t, "a2", procedures[0].ID)
	assert.Empty(t, idx.GetByCategory(CategoryLabTests))

	all[0].Keywords[0] = "mutated"
	again, _ := idx.GetByID("a1")
	assert.Equal(t, "appendix", again.Keywords[0], "returned records are copies")
}

func TestBuildFromSources(t *testing.T) {
	idx := newTestIndex()
	idx.Add(Record{ID: "old", Title: "Old record", Category: CategoryEducational})

	require.NoError(t, idx.BuildFromSources(map[Category][]Record{
		CategorySymptoms:   {{ID: "s1", Title: "Fever"}},
		CategoryConditions: {{ID: "c1", Title: "Influenza", Category: CategoryAnatomy}},
	}))

	_, ok := idx.GetByID("old")
	assert.False(t, ok)
	c1, ok := idx.GetByID("c1")
	require.True(t, ok)
	assert.Equal(t, CategoryConditions, c1.Category, "source key wins")
	assert.Equal(t, map[Category]int{CategorySymptoms: 1, CategoryConditions: 1}, idx.Stats().CategoryCounts)
	assert.Nil(t, idx.Lookup("old"))
}

func TestStatsAndGeneration(t *testing.T) {
	var ops []string
	idx := newTestIndex(WithObserver(func(op string, s Stats) { ops = append(ops, op) }))
	assert.Equal(t, 0, idx.Stats().DocumentCount)
	g0 := idx.Generation()

	idx.AddMany([]Record{appendicitis(), appendectomy()})
	s := idx.Stats()
	assert.Equal(t, 2, s.DocumentCount)
	assert.Equal(t, len(idx.AllTerms()), s.TermCount)
	assert.Equal(t, 1, s.CategoryCounts[CategoryConditions])
	assert.Positive(t, s.ApproxBytes)
	assert.Equal(t, fixedNow, s.LastIndexed)
	assert.Greater(t, idx.Generation(), g0)

	idx.Remove("a2")
	assert.Equal(t, 1, idx.Stats().DocumentCount)
	assert.Equal(t, []string{"add_many", "remove"}, ops)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestIndex()
	rec := appendicitis()
	rec.Metadata.Extra = map[string]string{"source": "atlas"}
	src.AddMany([]Record{rec, appendectomy()})

	blob, err := src.Export()
	require.NoError(t, err)

	dst := newTestIndex()
	require.NoError(t, dst.Import(blob))

	assert.Equal(t, src.GetAll(), dst.GetAll())
	assert.Equal(t, src.Snapshot(), dst.Snapshot())
	srcStats, dstStats := src.Stats(), dst.Stats()
	assert.Equal(t, srcStats.DocumentCount, dstStats.DocumentCount)
	assert.Equal(t, srcStats.TermCount, dstStats.TermCount)
	assert.Equal(t, srcStats.CategoryCounts, dstStats.CategoryCounts)
	assert.Equal(t, srcStats.ApproxBytes, dstStats.ApproxBytes)
	assert.True(t, IsExport([]byte(blob)))
}

func TestMutationsRejectInvalidRecords(t *testing.T) {
	invalid := []struct {
		name string
		rec  Record
	}{
		{"zero category", Record{ID: "x1", Title: "Fever"}},
		{"unknown category", Record{ID: "x1", Title: "Fever", Category: "cardiology"}},
		{"empty id", Record{Title: "Fever", Category: CategorySymptoms}},
		{"blank id", Record{ID: "  ", Title: "Fever", Category: CategorySymptoms}},
	}

	idx := newTestIndex()
	require.NoError(t, idx.AddMany([]Record{appendicitis(), appendectomy()}))
	before := idx.GetAll()
	beforeTerms := idx.Snapshot()
	gen := idx.Generation()

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, idx.Add(tt.rec), apperrors.ErrInvalidInput)
			assert.ErrorIs(t, idx.AddMany([]Record{appendicitis(), tt.rec}), apperrors.ErrInvalidInput)
			assert.ErrorIs(t, idx.Update(tt.rec), apperrors.ErrInvalidInput)
			assert.ErrorIs(t, idx.UpdateMetadata(tt.rec), apperrors.ErrInvalidInput)

			assert.Equal(t, before, idx.GetAll())
			assert.Equal(t, beforeTerms, idx.Snapshot())
			assert.Equal(t, gen, idx.Generation())
		})
	}

	t.Run("bad source rejects the build", func(t *testing.T) {
		err := idx.BuildFromSources(map[Category][]Record{
			CategorySymptoms: {{ID: "s1", Title: "Fever"}},
			"cardiology":     {{ID: "c1", Title: "Arrhythmia"}},
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		err = idx.BuildFromSources(map[Category][]Record{CategorySymptoms: {{Title: "no id"}}})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Equal(t, before, idx.GetAll())
	})
}

func TestExportAlwaysImports(t *testing.T) {
	idx := newTestIndex()
	require.NoError(t, idx.AddMany([]Record{appendicitis(), appendectomy()}))
	assert.Error(t, idx.Add(Record{ID: "x1", Title: "Fever"}))

	blob, err := idx.Export()
	require.NoError(t, err)

	restored := newTestIndex()
	require.NoError(t, restored.Import(blob))
	assert.Equal(t, idx.GetAll(), restored.GetAll())
	assert.Equal(t, idx.Stats().CategoryCounts, restored.Stats().CategoryCounts)
}

func TestImportRejectsMalformedAndKeepsState(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"not json", "not valid data"},
		{"empty", ""},
		{"wrong shape", `[1,2,3]`},
		{"missing records", `{"version":1}`},
		{"bad version", `{"version":99,"records":[]}`},
		{"empty id", `{"version":1,"records":[{"id":"","title":"x","category":"anatomy"}]}`},
		{"unknown category", `{"version":1,"records":[{"id":"x","title":"x","category":"astrology"}]}`},
		{"unknown field", `{"version":1,"records":[],"shards":4}`},
		{"trailing data", `{"version":1,"records":[]} {}`},
	}

	idx := newTestIndex()
	idx.AddMany([]Record{appendicitis(), appendectomy()})
	before := idx.GetAll()
	beforeTerms := idx.Snapshot()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := idx.Import(tt.blob)
			require.Error(t, err)
			assert.True(t, apperrors.IsFormat(err))
			assert.Equal(t, before, idx.GetAll())
			assert.Equal(t, beforeTerms, idx.Snapshot())
		})
	}
}

func TestStemmingOption(t *testing.T) {
	opts := tokenizer.DefaultOptions()
	opts.Stem = true
	idx := newTestIndex(WithTokenizer(opts))
	idx.Add(Record{ID: "j", Title: "Swollen joints", Category: CategorySymptoms})

	assert.Equal(t, []string{"j"}, idsOf(idx.Lookup("joint")))
	assert.Nil(t, idx.Lookup("joints"))
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryLabTests.Valid())
	assert.False(t, Category("astrology").Valid())
	assert.Len(t, Categories(), 8)
}

func BenchmarkIndexAdd(b *testing.B) {
	idx := newTestIndex()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Add(Record{
			ID:          fmt.Sprintf("doc-%d", i),
			Title:       "benchmark title",
			Description: "a benchmark record with several terms for measuring indexing throughput",
			Category:    CategoryEducational,
		})
	}
}

func BenchmarkIndexLookup(b *testing.B) {
	idx := newTestIndex()
	recs := make([]Record, 0, 10000)
	for i := 0; i < 10000; i++ {
		recs = append(recs, Record{
			ID:          fmt.Sprintf("doc-%d", i),
			Title:       "cardiac anatomy",
			Description: "heart chambers valves and vessels",
			Category:    CategoryAnatomy,
		})
	}
	idx.AddMany(recs)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Lookup("heart")
	}
}
