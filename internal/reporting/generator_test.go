package reporting_test

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/internal/reporting"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

const reportCatalogDoc = `version: "1.0.0"
platforms:
  - id: github
    name: GitHub
    url_template: "https://github.com/{username}"
    category: development
    audience: public
    risk_weight: 0.6
    exposure_tags: [real_name, email]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: forum
    name: Forum
    url_template: "https://forum.example.com/u/{username}"
    category: social
    audience: public
    risk_weight: 0.4
    exposure_tags: [location]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: wall
    name: Wall
    url_template: "https://wall.example.com/{username}"
    category: social
    audience: public
    risk_weight: 0.3
    detection: {method: status_code, found_status: 200, not_found_status: 404}
`

func newTestGenerator(t *testing.T, cfg models.ReportingConfig) *reporting.Generator {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	path := filepath.Join(t.TempDir(), "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(reportCatalogDoc), 0o644))
	cat, err := catalog.LoadFile(path, logger)
	require.NoError(t, err)

	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	g, err := reporting.NewGenerator(cfg, cat, "1.0.0", logger)
	require.NoError(t, err)
	return g
}

func sampleAnalysis() *models.ScanAnalysis {
	return &models.ScanAnalysis{
		Username:       "alice",
		ScanID:         "scan_00000000000000aa",
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		TotalPlatforms: 3,
		ProfilesFound:  1,
		Duration:       1200 * time.Millisecond,
		RiskScore:      0.412,
		RiskLevel:      models.RiskMedium,
		Platforms: map[string]*models.PlatformResult{
			"wall": {
				Platform: "wall", PlatformName: "Wall",
				Status: models.StatusBlocked, HTTPStatus: 403,
				Confidence: 0.3, ResponseTime: 50 * time.Millisecond,
			},
			"github": {
				Platform: "github", PlatformName: "GitHub", Found: true,
				URL: "https://github.com/alice", Status: models.StatusFound, HTTPStatus: 200,
				Confidence: 0.95, ResponseTime: 130 * time.Millisecond,
			},
			"forum": {
				Platform: "forum", PlatformName: "Forum",
				Status: models.StatusNotFound, HTTPStatus: 404,
				Confidence: 0.85, ResponseTime: 90 * time.Millisecond,
			},
		},
		Correlation: &models.CorrelationData{
			Username:   "alice",
			Patterns:   []string{"plain"},
			Confidence: 0.4,
		},
	}
}

func TestBuildReport(t *testing.T) {
	g := newTestGenerator(t, models.ReportingConfig{})

	report := g.Build(sampleAnalysis())

	assert.Equal(t, "alice", report.Metadata.Username)
	assert.Equal(t, "scan_00000000000000aa", report.Metadata.ScanID)
	assert.Equal(t, "profilynx", report.Metadata.GeneratedBy)
	assert.Equal(t, "1.0.0", report.Metadata.ToolVersion)

	require.Len(t, report.Profiles, 3)
	assert.Equal(t, "github", report.Profiles[0].Platform)
	assert.Equal(t, "forum", report.Profiles[1].Platform)
	assert.Equal(t, "wall", report.Profiles[2].Platform)
	assert.Equal(t, "development", report.Profiles[0].Category)
	assert.Equal(t, []string{"real_name", "email"}, report.Profiles[0].ExposureTags)
	assert.Empty(t, report.Profiles[1].ExposureTags)

	assert.Equal(t, 3, report.Summary.TotalPlatforms)
	assert.Equal(t, 1, report.Summary.ProfilesFound)
	assert.Equal(t, 1, report.Summary.Blocked)
	assert.Zero(t, report.Summary.Errors)
	assert.Equal(t, map[string]int{"development": 1}, report.Summary.Categories)
	assert.Equal(t, []string{"email", "real_name"}, report.Summary.ExposureTags)
	assert.Equal(t, []string{"plain"}, report.Summary.Patterns)
	assert.InDelta(t, 0.4, report.Summary.CorrelationConfidence, 1e-9)
	assert.Equal(t, "Medium", report.Summary.RiskLevel)
}

func TestRenderJSON(t *testing.T) {
	g := newTestGenerator(t, models.ReportingConfig{})

	data, err := g.Render(sampleAnalysis(), "json")
	require.NoError(t, err)

	var report reporting.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "alice", report.Metadata.Username)
	assert.Len(t, report.Profiles, 3)
}

func TestRenderCSV(t *testing.T) {
	g := newTestGenerator(t, models.ReportingConfig{})

	data, err := g.Render(sampleAnalysis(), "csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "platform,name,category,status"))
	assert.Contains(t, lines[1], "GitHub")
	assert.Contains(t, lines[1], "found")
	assert.Contains(t, lines[3], "blocked")
}

func TestRenderMarkdown(t *testing.T) {
	g := newTestGenerator(t, models.ReportingConfig{})

	data, err := g.Render(sampleAnalysis(), "markdown")
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "# Username report: alice")
	assert.Contains(t, text, "| GitHub | found | 0.95 | https://github.com/alice |")
	assert.Contains(t, text, "Exposure: email, real_name")
	assert.Contains(t, text, "Patterns: plain")
	assert.Contains(t, text, "0.412 (Medium)")
}

func TestRenderUnsupportedFormat(t *testing.T) {
	g := newTestGenerator(t, models.ReportingConfig{})

	_, err := g.Render(sampleAnalysis(), "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}

func TestExportWritesFile(t *testing.T) {
	dir := t.TempDir()
	g := newTestGenerator(t, models.ReportingConfig{OutputDir: dir, Format: "json"})

	path, err := g.Export(sampleAnalysis(), "")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "profilynx_alice_"))
	assert.True(t, strings.HasSuffix(path, ".json"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var report reporting.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, "alice", report.Metadata.Username)

	stats := g.GetStats()
	assert.Equal(t, 1, stats["reports"])
}

func TestBatchSummaryRendering(t *testing.T) {
	g := newTestGenerator(t, models.ReportingConfig{})

	job := models.BatchScanJob{
		ID:               "9f2c7d1e",
		Usernames:        []string{"alice", "bob"},
		TaskIDs:          []string{"t1", "t2"},
		Completed:        1,
		Failed:           1,
		AverageRiskScore: 0.412,
		CreatedAt:        time.Now().Add(-time.Minute),
		FinishedAt:       time.Now(),
	}
	tasks := []models.ScanTask{
		{Username: "alice", Status: models.TaskCompleted, Result: sampleAnalysis()},
		{Username: "bob", Status: models.TaskFailed, Error: "task cancelled"},
	}

	data, err := g.RenderBatch(job, tasks, "markdown")
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "# Batch scan summary")
	assert.Contains(t, text, "| alice | completed | 1 | 0.412 | Medium |")
	assert.Contains(t, text, "| bob | failed | 0 | 0.000 |")

	data, err = g.RenderBatch(job, tasks, "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "task cancelled")

	path, err := g.ExportBatch(job, tasks, "json")
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "profilynx_batch_9f2c7d1e")

	var summary reporting.BatchSummary
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, 1, summary.Completed)
	assert.InDelta(t, 0.412, summary.AverageRiskScore, 1e-9)
}
