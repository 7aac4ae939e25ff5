package storage_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bl4ck0w1/profilynx/internal/storage"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestExportAndLoad(t *testing.T) {
	dir := t.TempDir()
	exporter, err := storage.NewExporter(dir, false, 0, discardLogger())
	require.NoError(t, err)
	defer exporter.Close()

	analysis := sampleAnalysis("alice")
	path, err := exporter.Export(analysis)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "scan_alice_"))
	assert.True(t, strings.HasSuffix(path, ".json"))

	loaded, err := exporter.Load(path)
	require.NoError(t, err)
	assert.Equal(t, analysis.Username, loaded.Username)
	assert.Equal(t, analysis.ScanID, loaded.ScanID)
	assert.InDelta(t, analysis.RiskScore, loaded.RiskScore, 0.0001)
	assert.Len(t, loaded.Platforms, 2)
}

func TestExportCompressed(t *testing.T) {
	dir := t.TempDir()
	exporter, err := storage.NewExporter(dir, true, 0, discardLogger())
	require.NoError(t, err)
	defer exporter.Close()

	path, err := exporter.Export(sampleAnalysis("bob"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".json.gz"))

	// The uncompressed intermediate is cleaned up.
	_, err = os.Stat(strings.TrimSuffix(path, ".gz"))
	assert.True(t, os.IsNotExist(err))

	loaded, err := exporter.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", loaded.Username)
}

func TestExportSanitizesUsername(t *testing.T) {
	dir := t.TempDir()
	exporter, err := storage.NewExporter(dir, false, 0, discardLogger())
	require.NoError(t, err)
	defer exporter.Close()

	analysis := sampleAnalysis("we/ird..name")
	path, err := exporter.Export(analysis)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.NotContains(t, filepath.Base(path), "/")
}

func TestPruneRemovesExpiredExports(t *testing.T) {
	dir := t.TempDir()
	exporter, err := storage.NewExporter(dir, false, time.Hour, discardLogger())
	require.NoError(t, err)
	defer exporter.Close()

	oldPath, err := exporter.Export(sampleAnalysis("alice"))
	require.NoError(t, err)

	freshPath, err := exporter.Export(sampleAnalysis("bob"))
	require.NoError(t, err)
	require.NotEqual(t, oldPath, freshPath)

	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))

	removed, err := exporter.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshPath)
	assert.NoError(t, err)
}

func TestExporterCloseStopsJanitor(t *testing.T) {
	defer goleak.VerifyNone(t)

	exporter, err := storage.NewExporter(t.TempDir(), false, time.Hour, discardLogger())
	require.NoError(t, err)

	exporter.Close()
	exporter.Close()
}
