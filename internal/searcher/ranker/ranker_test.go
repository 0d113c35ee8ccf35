package ranker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/config"
)

var now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestScore(t *testing.T) {
	r := New(config.DefaultRanking())
	tests := []struct {
		name string
		f    Factors
		want float64
	}{
		{
			name: "no signals",
			f:    Factors{Category: "unknown"},
			want: 0.05 + 0.1 + 0.075,
		},
		{
			name: "strong match on stale educational record",
			f:    Factors{MatchScore: 0.9, Category: index.CategoryEducational},
			want: (0.315 + 0.05 + 0.085 + 0.075) * 1.3,
		},
		{
			name: "everything maxed clamps to one",
			f: Factors{
				MatchScore:      1,
				Popularity:      500,
				LastUpdated:     now.Add(-24 * time.Hour),
				Verified:        true,
				Category:        index.CategoryConditions,
				Personalization: &Personalization{PreferredCategory: true, LinkedToRecent: true},
			},
			want: 1,
		},
		{
			name: "popular boost",
			f:    Factors{MatchScore: 0.5, Popularity: 999, Category: index.CategoryAnatomy},
			want: (0.175 + 0.6*0.15 + 0.05 + 0.1 + 0.075) * 1.15,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, r.Score(tt.f, now), 1e-9)
		})
	}
}

func TestScoreIsBoundedAndMonotonicInMatch(t *testing.T) {
	r := New(config.DefaultRanking())
	prev := -1.0
	for _, m := range []float64{0, 0.2, 0.4, 0.6, 0.8, 0.86, 0.9, 0.96, 1} {
		s := r.Score(Factors{MatchScore: m, Category: index.CategorySymptoms}, now)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.Greater(t, s, prev, "match %v", m)
		prev = s
	}
}

func TestPersonalizationRaisesScore(t *testing.T) {
	r := New(config.DefaultRanking())
	base := Factors{MatchScore: 0.5, Category: index.CategoryAnatomy}
	plain := r.Score(base, now)

	preferred := base
	preferred.Personalization = &Personalization{PreferredCategory: true}
	linked := base
	linked.Personalization = &Personalization{PreferredCategory: true, LinkedToRecent: true}

	assert.InDelta(t, plain+0.1*0.15, r.Score(preferred, now), 1e-9)
	assert.InDelta(t, plain+0.25*0.15, r.Score(linked, now), 1e-9)
	assert.Equal(t, plain, r.Score(Factors{MatchScore: 0.5, Category: index.CategoryAnatomy, Personalization: &Personalization{}}, now))
}

func TestNormalizePopularity(t *testing.T) {
	assert.Zero(t, NormalizePopularity(0))
	assert.Zero(t, NormalizePopularity(-5))
	assert.InDelta(t, 0.2, NormalizePopularity(9), 1e-9)
	assert.InDelta(t, 1, NormalizePopularity(99999), 1e-9)
	assert.Equal(t, 1.0, NormalizePopularity(1e12))
}

func TestRecency(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name    string
		updated time.Time
		want    float64
	}{
		{"unknown", time.Time{}, 0},
		{"today", now, 1},
		{"six days", now.Add(-6 * day), 1},
		{"one week", now.Add(-7 * day), 1},
		{"half year", now.Add(-186 * day), 0.5},
		{"over a year", now.Add(-400 * day), 0},
		{"future", now.Add(day), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Recency(tt.updated, now), 1e-9)
		})
	}
}

func TestCategoryBoost(t *testing.T) {
	assert.Equal(t, 1.20, CategoryBoost(index.CategoryConditions))
	assert.Equal(t, 0.85, CategoryBoost(index.CategoryEducational))
	assert.Equal(t, 1.0, CategoryBoost("unheard_of"))
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(0.9, "b", 0.5, "a"))
	assert.Positive(t, Compare(0.5, "a", 0.9, "b"))
	assert.Negative(t, Compare(0.5, "a", 0.5, "b"))
	assert.Zero(t, Compare(0.5, "a", 0.5, "a"))
}
