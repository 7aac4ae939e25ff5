package analysis_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/analysis"
	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

const testCatalogDoc = `version: "1.0.0"
platforms:
  - id: github
    name: GitHub
    url_template: "https://github.com/{username}"
    category: development
    audience: public
    risk_weight: 0.6
    exposure_tags: [real_name, location]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: gitlab
    name: GitLab
    url_template: "https://gitlab.com/{username}"
    category: development
    audience: public
    risk_weight: 0.5
    exposure_tags: [real_name]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: twitter
    name: Twitter
    url_template: "https://twitter.com/{username}"
    category: social
    audience: public
    risk_weight: 0.5
    exposure_tags: [real_name, location, bio]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: instagram
    name: Instagram
    url_template: "https://www.instagram.com/{username}"
    category: social
    audience: public
    risk_weight: 0.55
    exposure_tags: [photos]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: keybase
    name: Keybase
    url_template: "https://keybase.io/{username}"
    category: security
    audience: configurable
    risk_weight: 0.2
    exposure_tags: [pgp_key]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: patreon
    name: Patreon
    url_template: "https://www.patreon.com/{username}"
    category: monetization
    audience: public
    risk_weight: 0.45
    exposure_tags: [payment_info]
    monetization: true
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: kofi
    name: Ko-fi
    url_template: "https://ko-fi.com/{username}"
    category: monetization
    audience: public
    risk_weight: 0.4
    exposure_tags: [payment_info]
    monetization: true
    detection: {method: status_code, found_status: 200, not_found_status: 404}
`

func loadTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogDoc), 0o644))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cat, err := catalog.LoadFile(path, logger)
	require.NoError(t, err)
	return cat
}

func scanWithFound(username string, found ...string) *models.ScanAnalysis {
	analysis := &models.ScanAnalysis{
		Username:  username,
		ScanID:    "scan_0000000000000000",
		Timestamp: time.Now(),
		Platforms: make(map[string]*models.PlatformResult),
	}
	for _, id := range found {
		analysis.Platforms[id] = &models.PlatformResult{
			Platform:     id,
			Found:        true,
			Status:       models.StatusFound,
			ResponseTime: 100 * time.Millisecond,
		}
		analysis.ProfilesFound++
	}
	return analysis
}

func TestScore_TwoPublicProfiles(t *testing.T) {
	cat := loadTestCatalog(t)
	scorer := analysis.NewScorer(cat)

	scan := scanWithFound("alice", "github", "twitter")
	score, level := scorer.Score(scan)

	// public 2x0.15 = 0.30; mean weight 0.55 x 0.4 = 0.22;
	// 2 of 4 categories x 0.25 = 0.125; 5 of 10 tags x 0.2 = 0.10.
	assert.InDelta(t, 0.186, score, 1e-9)
	assert.Equal(t, models.RiskLow, level)
}

func TestScore_EverythingFound(t *testing.T) {
	cat := loadTestCatalog(t)
	scorer := analysis.NewScorer(cat)

	scan := scanWithFound("alice", "github", "gitlab", "twitter", "instagram", "keybase", "patreon", "kofi")
	score, _ := scorer.Score(scan)

	assert.InDelta(t, 0.308, score, 1e-9)
}

func TestScore_NothingFound(t *testing.T) {
	cat := loadTestCatalog(t)
	scorer := analysis.NewScorer(cat)

	score, level := scorer.Score(scanWithFound("alice"))
	assert.Zero(t, score)
	assert.Equal(t, models.RiskLow, level)
}

func TestScore_PublicExposureMonotonic(t *testing.T) {
	cat := loadTestCatalog(t)
	scorer := analysis.NewScorer(cat)

	two, _ := scorer.Score(scanWithFound("alice", "github", "twitter"))
	three, _ := scorer.Score(scanWithFound("alice", "github", "twitter", "gitlab"))
	assert.GreaterOrEqual(t, three, two, "adding a found public platform must not lower the score")
}

func TestRiskLevelThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  models.RiskLevel
	}{
		{0.0, models.RiskLow},
		{0.399, models.RiskLow},
		{0.40, models.RiskMedium},
		{0.599, models.RiskMedium},
		{0.60, models.RiskHigh},
		{0.749, models.RiskHigh},
		{0.75, models.RiskCritical},
		{1.0, models.RiskCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.RiskLevelForScore(tc.score), "score %.3f", tc.score)
	}
}
