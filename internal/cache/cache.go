package cache

import (
	"context"
	"time"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Cache is the lookaside store used to memoize correlation output. A miss
// is ("", false, nil); errors are reserved for backend failures, and
// callers are expected to fall back to recomputation when they see one.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// FromConfig builds the backend named by the analysis configuration.
func FromConfig(cfg *models.AnalysisConfig) (Cache, error) {
	if cfg != nil && cfg.CacheBackend == "redis" {
		return NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	return NewMemory(time.Minute), nil
}
