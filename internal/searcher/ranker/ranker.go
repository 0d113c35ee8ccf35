// Package ranker folds a match score and per-record signals into a single
// relevance score in [0, 1].
package ranker

import (
	"cmp"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/config"
)

const (
	freshDays        = 7
	staleDays        = 365
	basePersonal     = 0.5
	preferredBonus   = 0.1
	recentLinkBonus  = 0.15
	exactMatchAbove  = 0.95
	strongMatchAbove = 0.85
)

var categoryBoosts = map[index.Category]float64{
	index.CategoryConditions:   1.20,
	index.CategorySymptoms:     1.15,
	index.CategoryMedications:  1.10,
	index.CategoryAnatomy:      1.00,
	index.CategoryProcedures:   1.00,
	index.CategoryLabTests:     0.95,
	index.CategoryEncyclopedia: 0.90,
	index.CategoryEducational:  0.85,
}

// CategoryBoost returns the multiplier for c; unknown categories get 1.
func CategoryBoost(c index.Category) float64 {
	if b, ok := categoryBoosts[c]; ok {
		return b
	}
	return 1
}

// Personalization carries caller-supplied signals about the current user.
type Personalization struct {
	// PreferredCategory is true when the record's category is among the
	// user's stated preferences.
	PreferredCategory bool
	// LinkedToRecent is true when the record relates to one of the user's
	// recent queries.
	LinkedToRecent bool
}

// Factors are the inputs for one record.
type Factors struct {
	MatchScore      float64
	Popularity      float64
	LastUpdated     time.Time
	Verified        bool
	Category        index.Category
	Personalization *Personalization
}

type Ranker struct {
	cfg config.RankingConfig
}

func New(cfg config.RankingConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// Score computes the relevance of f as of now. It is a pure function of its
// arguments.
func (r *Ranker) Score(f Factors, now time.Time) float64 {
	verified := 0.5
	if f.Verified {
		verified = 1
	}
	score := f.MatchScore*r.cfg.MatchWeight +
		NormalizePopularity(f.Popularity)*r.cfg.PopularityWeight +
		Recency(f.LastUpdated, now)*r.cfg.RecencyWeight +
		verified*r.cfg.VerifiedWeight +
		CategoryBoost(f.Category)*r.cfg.CategoryWeight +
		personalization(f.Personalization)*r.cfg.PersonalizationWeight

	if f.Verified {
		score *= r.cfg.VerifiedBoost
	}
	switch {
	case f.MatchScore > exactMatchAbove:
		score *= r.cfg.ExactMatchBoost
	case f.MatchScore > strongMatchAbove:
		score *= r.cfg.StrongMatchBoost
	}
	if f.Popularity > r.cfg.PopularThreshold {
		score *= r.cfg.PopularBoost
	}
	return clamp01(score)
}

// NormalizePopularity maps a raw count onto [0, 1] as log10(p+1)/5.
func NormalizePopularity(p float64) float64 {
	if p <= 0 {
		return 0
	}
	return math.Min(1, math.Log10(p+1)/5)
}

// Recency is 1 for records updated within the last week, decays linearly to
// 0 at one year, and treats a zero timestamp as a year old.
func Recency(updated, now time.Time) float64 {
	ageDays := float64(staleDays)
	if !updated.IsZero() {
		ageDays = now.Sub(updated).Hours() / 24
	}
	if ageDays < freshDays {
		return 1
	}
	return clamp01(1 - (ageDays-freshDays)/(staleDays-freshDays))
}

func personalization(p *Personalization) float64 {
	v := basePersonal
	if p == nil {
		return v
	}
	if p.PreferredCategory {
		v += preferredBonus
	}
	if p.LinkedToRecent {
		v += recentLinkBonus
	}
	return v
}

// Compare orders by score descending, then id ascending.
func Compare(scoreA float64, idA string, scoreB float64, idB string) int {
	if scoreA != scoreB {
		return cmp.Compare(scoreB, scoreA)
	}
	return cmp.Compare(idA, idB)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
