package commands

import (
	"fmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/profilynx/internal/analysis"
	"github.com/bl4ck0w1/profilynx/internal/cache"
	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/internal/evasion"
	"github.com/bl4ck0w1/profilynx/internal/probing"
	"github.com/bl4ck0w1/profilynx/internal/scanning"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

// loadRuntimeConfig materializes the structured config from the file the
// root command discovered, or from defaults when none exists. Logging keys
// come back out of viper so flag and env overrides keep their precedence.
func loadRuntimeConfig() (*models.Config, error) {
	cfg := models.DefaultConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		if err := cfg.Load(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Global.LogLevel = viper.GetString("global.log_level")
	cfg.Global.LogFormat = viper.GetString("global.log_format")
	return cfg, nil
}

func openCatalog(cfg *models.Config, logger *logrus.Logger) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if cfg.Catalog.Path != "" {
		cat, err = catalog.LoadFile(cfg.Catalog.Path, logger)
	} else {
		cat, err = catalog.Load(logger)
	}
	if err != nil {
		return nil, fmt.Errorf("load platform catalog: %w", err)
	}
	if len(cfg.Catalog.Categories) > 0 {
		cat = cat.Filter(cfg.Catalog.Categories)
	}
	return cat, nil
}

// scanStack bundles the probing pipeline shared by the scan, batch and
// serve commands.
type scanStack struct {
	catalog     *catalog.Catalog
	metrics     *utils.MetricsCollector
	engine      *probing.Engine
	coordinator *scanning.Coordinator
	cache       cache.Cache
	analyzer    *analysis.Analyzer
}

func buildStack(cfg *models.Config, probeCfg models.ProbeConfig, runtimeMetrics bool) (*scanStack, error) {
	logger := logrus.StandardLogger()

	cat, err := openCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}

	suite, err := evasion.NewSuite(&probeCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build evasion suite: %w", err)
	}

	namespace := cfg.Metrics.Namespace
	if namespace == "" {
		namespace = "profilynx"
	}
	metrics := utils.NewMetricsCollector(namespace, runtimeMetrics)

	engine := probing.NewEngine(cat, &probeCfg, suite, metrics, logger)
	coordinator := scanning.NewCoordinator(engine, cat, metrics, logger)

	store, err := cache.FromConfig(&cfg.Analysis)
	if err != nil {
		return nil, fmt.Errorf("init analysis cache: %w", err)
	}
	analyzer := analysis.NewAnalyzer(cat, store, cfg.Analysis.CacheTTL, metrics, logger)

	return &scanStack{
		catalog:     cat,
		metrics:     metrics,
		engine:      engine,
		coordinator: coordinator,
		cache:       store,
		analyzer:    analyzer,
	}, nil
}

func (s *scanStack) Close() {
	s.engine.Close()
	if err := s.cache.Close(); err != nil {
		logrus.Debugf("Closing analysis cache: %v", err)
	}
}
