package scanning

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/internal/probing"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

// Coordinator runs one username scan end to end: input normalization,
// platform fan-out through the probe engine, and assembly of the raw
// ScanAnalysis. Risk scoring and correlation happen downstream.
type Coordinator struct {
	engine  *probing.Engine
	catalog *catalog.Catalog
	metrics *utils.MetricsCollector
	logger  *logrus.Logger
}

func NewCoordinator(engine *probing.Engine, cat *catalog.Catalog, metrics *utils.MetricsCollector, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = utils.DefaultMetricsCollector()
	}
	return &Coordinator{
		engine:  engine,
		catalog: cat,
		metrics: metrics,
		logger:  logger,
	}
}

// RunScan probes the selected platforms (all when platformIDs is empty) for
// one username. RiskScore and RiskLevel stay zero here; the analysis engine
// fills them in as a separate step.
func (c *Coordinator) RunScan(ctx context.Context, username string, platformIDs []string) (*models.ScanAnalysis, error) {
	normalized, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	analysis := &models.ScanAnalysis{
		Username:  normalized,
		ScanID:    NewScanID(normalized, start),
		Timestamp: start,
		Platforms: make(map[string]*models.PlatformResult),
	}

	results, err := c.engine.ScanPlatforms(ctx, normalized, platformIDs)
	if err != nil {
		c.metrics.RecordScan("failed", time.Since(start))
		return nil, err
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		analysis.Platforms[r.Platform] = r
		if r.Found {
			analysis.ProfilesFound++
		}
		if r.Status == models.StatusError || r.Status == models.StatusTimeout {
			msg := r.Platform + ": " + string(r.Status)
			if r.Error != "" {
				msg = r.Platform + ": " + r.Error
			}
			analysis.Errors = append(analysis.Errors, msg)
		}
	}
	analysis.TotalPlatforms = len(results)
	analysis.Duration = time.Since(start)

	c.metrics.RecordScan("completed", analysis.Duration)
	c.logger.WithFields(logrus.Fields{
		"username":  normalized,
		"scan_id":   analysis.ScanID,
		"platforms": analysis.TotalPlatforms,
		"found":     analysis.ProfilesFound,
		"duration":  analysis.Duration.String(),
	}).Info("Scan completed")

	return analysis, nil
}

// Catalog exposes the platform catalog backing this coordinator.
func (c *Coordinator) Catalog() *catalog.Catalog {
	return c.catalog
}

func (c *Coordinator) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"catalog": c.catalog.GetStats(),
		"engine":  c.engine.GetStats(),
	}
}
