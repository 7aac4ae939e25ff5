package analysis

import (
	"math"

	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Scorer turns a completed scan into a risk score using the four-factor
// exposure model: public-profile count, mean platform risk weight, category
// coverage, and exposure-tag breadth.
type Scorer struct {
	catalog *catalog.Catalog
}

func NewScorer(cat *catalog.Catalog) *Scorer {
	return &Scorer{catalog: cat}
}

// Score returns the unweighted mean of the four capped factors, clamped to
// [0,1] and rounded to 3 decimals, with the matching risk level.
func (s *Scorer) Score(analysis *models.ScanAnalysis) (float64, models.RiskLevel) {
	var (
		publicFound int
		weightSum   float64
		foundCount  int
		tagSum      int
		categories  = make(map[string]struct{})
	)

	for _, def := range s.catalog.All() {
		r, ok := analysis.Platforms[def.ID]
		if !ok || r == nil || !r.Found {
			continue
		}
		foundCount++
		weightSum += def.RiskWeight
		tagSum += len(def.ExposureTags)
		categories[def.Category] = struct{}{}
		if def.Audience == models.AudiencePublic {
			publicFound++
		}
	}

	publicExposure := math.Min(0.15*float64(publicFound), 0.6)

	var meanWeight float64
	if foundCount > 0 {
		meanWeight = weightSum / float64(foundCount)
	}
	weightFactor := meanWeight * 0.4

	var coverage float64
	if total := s.catalog.CategoryCount(); total > 0 {
		coverage = float64(len(categories)) / float64(total) * 0.25
	}

	var breadth float64
	if max := s.catalog.MaxExposureTags(); max > 0 {
		breadth = float64(tagSum) / float64(max) * 0.2
	}

	score := round3(clamp01((publicExposure + weightFactor + coverage + breadth) / 4))
	return score, models.RiskLevelForScore(score)
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
