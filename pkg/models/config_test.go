package models_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, models.DefaultConfig().Validate())
}

func TestConfigSaveLoadRoundtrip(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Orchestrator.Workers = 7
	cfg.Probe.Timeout = 12 * time.Second
	cfg.Analysis.CacheTTL = 3 * time.Minute
	cfg.Storage.Enabled = true
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = "/tmp/profilynx.db"

	for _, name := range []string{"config.yaml", "config.json"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, cfg.Save(path))

		loaded := &models.Config{}
		require.NoError(t, loaded.Load(path))

		assert.Equal(t, 7, loaded.Orchestrator.Workers)
		assert.Equal(t, 12*time.Second, loaded.Probe.Timeout)
		assert.Equal(t, 3*time.Minute, loaded.Analysis.CacheTTL)
		assert.Equal(t, "/tmp/profilynx.db", loaded.Storage.Path)
		assert.Equal(t, models.ConfigSchemaVersion, loaded.Version)
	}
}

func TestConfigSaveRejectsInvalid(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Orchestrator.Workers = 0

	err := cfg.Save(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orchestrator.workers")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Global.LogLevel = "shout"
	cfg.Probe.MaxConcurrentRequests = 0
	cfg.Analysis.CacheBackend = "memcache"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "global.log_level")
	assert.Contains(t, err.Error(), "probe.max_concurrent_requests")
	assert.Contains(t, err.Error(), "analysis.cache_backend")
}

func TestCompatibleWith(t *testing.T) {
	cfg := models.DefaultConfig()

	assert.NoError(t, cfg.CompatibleWith(models.ConfigSchemaVersion))

	cfg.Version = "2.0.0"
	err := cfg.CompatibleWith(models.ConfigSchemaVersion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible")

	cfg.Version = "not-a-version"
	assert.Error(t, cfg.CompatibleWith(models.ConfigSchemaVersion))

	cfg.Version = ""
	assert.NoError(t, cfg.CompatibleWith(models.ConfigSchemaVersion))
}

func TestParsePriority(t *testing.T) {
	p, ok := models.ParsePriority("high")
	assert.True(t, ok)
	assert.Equal(t, models.PriorityHigh, p)

	p, ok = models.ParsePriority("")
	assert.True(t, ok)
	assert.Equal(t, models.PriorityMedium, p)

	p, ok = models.ParsePriority("urgent")
	assert.False(t, ok)
	assert.Equal(t, models.PriorityMedium, p)

	assert.Equal(t, "low", models.PriorityLow.String())
}
