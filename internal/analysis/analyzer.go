package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/internal/cache"
	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

// Analyzer is the post-scan interpretation step: risk scoring plus memoized
// correlation. The cache key includes the scan id, so a rescan of the same
// username never serves correlation data derived from older results.
type Analyzer struct {
	scorer     *Scorer
	correlator *Correlator
	cache      cache.Cache
	ttl        time.Duration
	metrics    *utils.MetricsCollector
	logger     *logrus.Logger
}

func NewAnalyzer(cat *catalog.Catalog, store cache.Cache, ttl time.Duration, metrics *utils.MetricsCollector, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = utils.DefaultMetricsCollector()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Analyzer{
		scorer:     NewScorer(cat),
		correlator: NewCorrelator(cat, logger),
		cache:      store,
		ttl:        ttl,
		metrics:    metrics,
		logger:     logger,
	}
}

func (a *Analyzer) Score(analysis *models.ScanAnalysis) (float64, models.RiskLevel) {
	return a.scorer.Score(analysis)
}

// Correlate returns the correlation report for a scan, reusing a cached
// report for the same username and scan id when one exists. Cache failures
// degrade to recomputation and never surface to the caller.
func (a *Analyzer) Correlate(ctx context.Context, analysis *models.ScanAnalysis) *models.CorrelationData {
	key := correlationKey(analysis.Username, analysis.ScanID)

	if a.cache != nil {
		raw, ok, err := a.cache.Get(ctx, key)
		switch {
		case err != nil:
			a.metrics.RecordCacheOp("error")
			a.logger.WithError(err).WithField("key", key).Warn("Correlation cache read failed")
		case ok:
			var cached models.CorrelationData
			if err := json.Unmarshal([]byte(raw), &cached); err != nil {
				a.metrics.RecordCacheOp("corrupt")
				a.logger.WithError(err).WithField("key", key).Warn("Discarding unreadable correlation cache entry")
			} else {
				a.metrics.RecordCacheOp("hit")
				return &cached
			}
		default:
			a.metrics.RecordCacheOp("miss")
		}
	}

	data := a.correlator.Correlate(analysis)

	if a.cache != nil {
		if raw, err := json.Marshal(data); err == nil {
			if err := a.cache.Set(ctx, key, string(raw), a.ttl); err != nil {
				a.metrics.RecordCacheOp("error")
				a.logger.WithError(err).WithField("key", key).Warn("Correlation cache write failed")
			}
		}
	}
	return data
}

// Analyze fills the risk and correlation fields of a completed scan in
// place.
func (a *Analyzer) Analyze(ctx context.Context, analysis *models.ScanAnalysis) {
	analysis.RiskScore, analysis.RiskLevel = a.scorer.Score(analysis)
	analysis.Correlation = a.Correlate(ctx, analysis)
}

func (a *Analyzer) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"cache_enabled": a.cache != nil,
		"cache_ttl":     a.ttl.String(),
	}
}

func correlationKey(username, scanID string) string {
	return fmt.Sprintf("correlation:%s:%s", username, scanID)
}
