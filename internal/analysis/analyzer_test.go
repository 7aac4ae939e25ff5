package analysis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/analysis"
	"github.com/bl4ck0w1/profilynx/internal/cache"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend down")
}

func (failingCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("backend down")
}

func (failingCache) Close() error { return nil }

func TestCorrelate_MemoizedPerScanID(t *testing.T) {
	cat := loadTestCatalog(t)
	store := cache.NewMemory(time.Minute)
	defer store.Close()

	analyzer := analysis.NewAnalyzer(cat, store, time.Minute, nil, nil)
	ctx := context.Background()

	scan := scanWithFound("alice", "github", "gitlab", "twitter")
	scan.ScanID = "scan_aaaaaaaaaaaaaaaa"

	first := analyzer.Correlate(ctx, scan)
	require.NotNil(t, first)

	// Adding a found platform without changing the scan id must serve the
	// memoized report, not a recomputed one.
	scan.Platforms["instagram"] = &models.PlatformResult{
		Platform: "instagram",
		Found:    true,
		Status:   models.StatusFound,
	}
	second := analyzer.Correlate(ctx, scan)
	assert.Equal(t, first.Patterns, second.Patterns)
	assert.Equal(t, first.Connections, second.Connections)

	// A fresh scan id sees the new platform.
	scan.ScanID = "scan_bbbbbbbbbbbbbbbb"
	third := analyzer.Correlate(ctx, scan)
	assert.Contains(t, third.Patterns, "strong_social_presence")
	assert.NotContains(t, second.Patterns, "strong_social_presence")
}

func TestCorrelate_CacheFailureDegradesToCompute(t *testing.T) {
	cat := loadTestCatalog(t)
	analyzer := analysis.NewAnalyzer(cat, failingCache{}, time.Minute, nil, nil)

	scan := scanWithFound("alice", "github", "gitlab", "twitter")
	data := analyzer.Correlate(context.Background(), scan)

	require.NotNil(t, data)
	assert.Contains(t, data.Patterns, "multi_platform_presence")
}

func TestCorrelate_NilCache(t *testing.T) {
	cat := loadTestCatalog(t)
	analyzer := analysis.NewAnalyzer(cat, nil, time.Minute, nil, nil)

	data := analyzer.Correlate(context.Background(), scanWithFound("alice", "github"))
	require.NotNil(t, data)
}

func TestAnalyze_FillsRiskAndCorrelation(t *testing.T) {
	cat := loadTestCatalog(t)
	store := cache.NewMemory(time.Minute)
	defer store.Close()

	analyzer := analysis.NewAnalyzer(cat, store, time.Minute, nil, nil)

	scan := scanWithFound("alice", "github", "twitter")
	analyzer.Analyze(context.Background(), scan)

	assert.InDelta(t, 0.186, scan.RiskScore, 1e-9)
	assert.Equal(t, models.RiskLow, scan.RiskLevel)
	require.NotNil(t, scan.Correlation)
	assert.Equal(t, "alice", scan.Correlation.Username)
}

func TestCorrelationCacheRoundTrip(t *testing.T) {
	cat := loadTestCatalog(t)
	store := cache.NewMemory(time.Minute)
	defer store.Close()

	analyzer := analysis.NewAnalyzer(cat, store, time.Minute, nil, nil)
	ctx := context.Background()

	scan := scanWithFound("alice", "patreon", "kofi")
	first := analyzer.Correlate(ctx, scan)
	second := analyzer.Correlate(ctx, scan)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.True(t, first.GeneratedAt.Equal(second.GeneratedAt), "cached report must keep its original timestamp")
}
