package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Correlator derives behavioral structure from a completed scan: presence
// patterns, likely cross-platform connections, a fingerprint, and anomalies.
// All iteration follows catalog order so output is deterministic.
type Correlator struct {
	catalog *catalog.Catalog
	logger  *logrus.Logger
}

func NewCorrelator(cat *catalog.Catalog, logger *logrus.Logger) *Correlator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Correlator{catalog: cat, logger: logger}
}

func (c *Correlator) Correlate(analysis *models.ScanAnalysis) *models.CorrelationData {
	var (
		foundIDs      []string
		foundResults  []*models.PlatformResult
		categoryCount = make(map[string]int)
		privateFound  int
	)
	for _, def := range c.catalog.All() {
		r, ok := analysis.Platforms[def.ID]
		if !ok || r == nil || !r.Found {
			continue
		}
		foundIDs = append(foundIDs, def.ID)
		foundResults = append(foundResults, r)
		categoryCount[def.Category]++
		if def.Audience == models.AudiencePrivate || def.Audience == models.AudienceConfigurable {
			privateFound++
		}
	}

	data := &models.CorrelationData{
		Username:    analysis.Username,
		Patterns:    c.patterns(len(foundIDs), categoryCount),
		Connections: c.catalog.ConnectionsAmong(foundIDs),
		Fingerprint: c.fingerprint(categoryCount, len(foundIDs), privateFound, foundIDs),
		Anomalies:   c.anomalies(analysis, foundResults),
		GeneratedAt: time.Now(),
	}
	data.Confidence = confidence(len(data.Patterns), edgeCount(data.Connections), len(foundIDs))
	return data
}

func (c *Correlator) patterns(foundCount int, categoryCount map[string]int) []string {
	patterns := make([]string, 0, 1+len(categoryCount))
	if foundCount >= 3 {
		patterns = append(patterns, "multi_platform_presence")
	}
	for _, category := range c.catalog.Categories() {
		if categoryCount[category] >= 2 {
			patterns = append(patterns, fmt.Sprintf("strong_%s_presence", category))
		}
	}
	return patterns
}

func (c *Correlator) fingerprint(categoryCount map[string]int, foundCount, privateFound int, foundIDs []string) models.BehavioralFingerprint {
	fp := models.BehavioralFingerprint{
		PrimaryInterest:   "none",
		ActivityDiversity: "inactive",
		PrivacyAwareness:  "unknown",
		Monetization:      "none",
	}
	if foundCount == 0 {
		return fp
	}

	best := 0
	for _, category := range c.catalog.Categories() {
		if n := categoryCount[category]; n > best {
			best = n
			fp.PrimaryInterest = category
		}
	}

	switch distinct := len(categoryCount); {
	case distinct >= 4:
		fp.ActivityDiversity = "highly_diverse"
	case distinct >= 2:
		fp.ActivityDiversity = "multi_interest"
	default:
		fp.ActivityDiversity = "specialized"
	}

	switch ratio := float64(privateFound) / float64(foundCount); {
	case ratio > 0.7:
		fp.PrivacyAwareness = "privacy_conscious"
	case ratio < 0.3:
		fp.PrivacyAwareness = "privacy_negligent"
	default:
		fp.PrivacyAwareness = "average"
	}

	monetized := 0
	flagged := make(map[string]struct{})
	for _, id := range c.catalog.MonetizationSet() {
		flagged[id] = struct{}{}
	}
	for _, id := range foundIDs {
		if _, ok := flagged[id]; ok {
			monetized++
		}
	}
	switch {
	case monetized >= 2:
		fp.Monetization = "active"
	case monetized == 1:
		fp.Monetization = "partial"
	}

	return fp
}

func (c *Correlator) anomalies(analysis *models.ScanAnalysis, foundResults []*models.PlatformResult) []string {
	anomalies := make([]string, 0, 2)

	if len(foundResults) > 0 {
		var total time.Duration
		for _, r := range foundResults {
			total += r.ResponseTime
		}
		mean := total / time.Duration(len(foundResults))
		if mean > 0 {
			for _, r := range foundResults {
				if r.ResponseTime > 2*mean {
					anomalies = append(anomalies, fmt.Sprintf("unusual_response_time:%s", r.Platform))
				}
			}
		}
	}

	for _, def := range c.catalog.All() {
		if r, ok := analysis.Platforms[def.ID]; ok && r != nil && r.Status == models.StatusBlocked {
			anomalies = append(anomalies, "possible_detection_evasion_triggered")
			break
		}
	}
	return anomalies
}

func edgeCount(connections map[string][]string) int {
	n := 0
	for _, targets := range connections {
		n += len(targets)
	}
	return n
}

func confidence(patternCount, connectionCount, foundCount int) float64 {
	score := 0.3*math.Min(float64(patternCount)/3, 1) +
		0.4*math.Min(float64(connectionCount)/5, 1)
	if foundCount > 1 {
		score += 0.3
	}
	return round2(clamp01(score))
}
