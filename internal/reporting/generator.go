package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Generator turns a finished ScanAnalysis into shareable report documents.
// Formatters are pluggable; json, csv and markdown ship by default.
type Generator struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	catalog    *catalog.Catalog
	outputDir  string
	defFormat  string
	version    string
	logger     *logrus.Logger
}

type Formatter interface {
	Format(report *Report) ([]byte, error)
	FormatBatch(summary *BatchSummary) ([]byte, error)
	FileExtension() string
}

type Report struct {
	Metadata    ReportMetadata `json:"metadata"`
	Summary     ReportSummary  `json:"summary"`
	Profiles    []ProfileEntry `json:"profiles"`
	Errors      []string       `json:"errors,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type ReportMetadata struct {
	ReportID    string    `json:"report_id"`
	ScanID      string    `json:"scan_id"`
	Username    string    `json:"username"`
	GeneratedBy string    `json:"generated_by"`
	ToolVersion string    `json:"tool_version"`
	Duration    string    `json:"duration"`
	Timestamp   time.Time `json:"timestamp"`
}

type ReportSummary struct {
	TotalPlatforms        int            `json:"total_platforms"`
	ProfilesFound         int            `json:"profiles_found"`
	Blocked               int            `json:"blocked"`
	Errors                int            `json:"errors"`
	RiskScore             float64        `json:"risk_score"`
	RiskLevel             string         `json:"risk_level"`
	Categories            map[string]int `json:"categories,omitempty"`
	ExposureTags          []string       `json:"exposure_tags,omitempty"`
	Patterns              []string       `json:"patterns,omitempty"`
	CorrelationConfidence float64        `json:"correlation_confidence,omitempty"`
}

type ProfileEntry struct {
	Platform     string   `json:"platform"`
	PlatformName string   `json:"platform_name"`
	Category     string   `json:"category,omitempty"`
	URL          string   `json:"url,omitempty"`
	Status       string   `json:"status"`
	HTTPStatus   int      `json:"http_status,omitempty"`
	Confidence   float64  `json:"confidence"`
	ResponseTime string   `json:"response_time"`
	ExposureTags []string `json:"exposure_tags,omitempty"`
}

type BatchSummary struct {
	JobID            string     `json:"job_id"`
	Usernames        []string   `json:"usernames"`
	Completed        int        `json:"completed"`
	Failed           int        `json:"failed"`
	AverageRiskScore float64    `json:"average_risk_score"`
	Rows             []BatchRow `json:"rows"`
	CreatedAt        time.Time  `json:"created_at"`
	FinishedAt       time.Time  `json:"finished_at,omitempty"`
	GeneratedAt      time.Time  `json:"generated_at"`
}

type BatchRow struct {
	Username      string  `json:"username"`
	Status        string  `json:"status"`
	ProfilesFound int     `json:"profiles_found"`
	RiskScore     float64 `json:"risk_score"`
	RiskLevel     string  `json:"risk_level,omitempty"`
	Error         string  `json:"error,omitempty"`
}

func NewGenerator(cfg models.ReportingConfig, cat *catalog.Catalog, version string, logger *logrus.Logger) (*Generator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "./reports"
	}
	defFormat := cfg.Format
	if defFormat == "" {
		defFormat = "json"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	tm := NewTemplateManager()
	if err := tm.Register("scan.md", scanTemplate, templateFuncs()); err != nil {
		return nil, err
	}
	if err := tm.Register("batch.md", batchTemplate, templateFuncs()); err != nil {
		return nil, err
	}

	g := &Generator{
		formatters: make(map[string]Formatter),
		catalog:    cat,
		outputDir:  outputDir,
		defFormat:  defFormat,
		version:    version,
		logger:     logger,
	}
	g.RegisterFormatter("json", &jsonFormatter{})
	g.RegisterFormatter("csv", &csvFormatter{})
	g.RegisterFormatter("markdown", &markdownFormatter{templates: tm})
	return g, nil
}

func (g *Generator) RegisterFormatter(name string, f Formatter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.formatters[name] = f
}

func (g *Generator) SupportedFormats() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.formatters))
	for name := range g.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build assembles the report document without rendering it. Platform entries
// follow catalog order; results for platforms the catalog no longer knows
// come last, sorted by id.
func (g *Generator) Build(analysis *models.ScanAnalysis) *Report {
	now := time.Now()
	report := &Report{
		Metadata: ReportMetadata{
			ReportID:    fmt.Sprintf("report_%s_%d", sanitizeFilename(analysis.Username), now.Unix()),
			ScanID:      analysis.ScanID,
			Username:    analysis.Username,
			GeneratedBy: "profilynx",
			ToolVersion: g.version,
			Duration:    analysis.Duration.String(),
			Timestamp:   analysis.Timestamp,
		},
		Errors:      analysis.Errors,
		GeneratedAt: now,
	}

	summary := ReportSummary{
		TotalPlatforms: analysis.TotalPlatforms,
		ProfilesFound:  analysis.ProfilesFound,
		RiskScore:      analysis.RiskScore,
		RiskLevel:      analysis.RiskLevel.Label,
		Categories:     make(map[string]int),
	}

	tagSet := make(map[string]struct{})
	for _, id := range g.orderedIDs(analysis) {
		r := analysis.Platforms[id]
		if r == nil {
			continue
		}
		entry := ProfileEntry{
			Platform:     r.Platform,
			PlatformName: r.PlatformName,
			URL:          r.URL,
			Status:       string(r.Status),
			HTTPStatus:   r.HTTPStatus,
			Confidence:   r.Confidence,
			ResponseTime: r.ResponseTime.String(),
		}
		if g.catalog != nil {
			if def, ok := g.catalog.Get(id); ok {
				entry.Category = def.Category
				if r.Found {
					entry.ExposureTags = def.ExposureTags
				}
			}
		}
		switch r.Status {
		case models.StatusBlocked:
			summary.Blocked++
		case models.StatusError, models.StatusTimeout:
			summary.Errors++
		}
		if r.Found {
			if entry.Category != "" {
				summary.Categories[entry.Category]++
			}
			for _, tag := range entry.ExposureTags {
				tagSet[tag] = struct{}{}
			}
		}
		report.Profiles = append(report.Profiles, entry)
	}

	for tag := range tagSet {
		summary.ExposureTags = append(summary.ExposureTags, tag)
	}
	sort.Strings(summary.ExposureTags)

	if analysis.Correlation != nil {
		summary.Patterns = analysis.Correlation.Patterns
		summary.CorrelationConfidence = analysis.Correlation.Confidence
	}
	report.Summary = summary
	return report
}

func (g *Generator) BuildBatch(job models.BatchScanJob, tasks []models.ScanTask) *BatchSummary {
	summary := &BatchSummary{
		JobID:            job.ID,
		Usernames:        job.Usernames,
		Completed:        job.Completed,
		Failed:           job.Failed,
		AverageRiskScore: job.AverageRiskScore,
		CreatedAt:        job.CreatedAt,
		FinishedAt:       job.FinishedAt,
		GeneratedAt:      time.Now(),
	}
	for _, task := range tasks {
		row := BatchRow{Username: task.Username, Status: string(task.Status), Error: task.Error}
		if task.Result != nil {
			row.ProfilesFound = task.Result.ProfilesFound
			row.RiskScore = task.Result.RiskScore
			row.RiskLevel = task.Result.RiskLevel.Label
		}
		summary.Rows = append(summary.Rows, row)
	}
	return summary
}

// Render returns the formatted report bytes without touching disk.
func (g *Generator) Render(analysis *models.ScanAnalysis, format string) ([]byte, error) {
	if analysis == nil {
		return nil, fmt.Errorf("%w: nil analysis", models.ErrInvalidInput)
	}
	f, err := g.formatter(format)
	if err != nil {
		return nil, err
	}
	return f.Format(g.Build(analysis))
}

// Export renders the report and writes it under the output directory,
// returning the written path.
func (g *Generator) Export(analysis *models.ScanAnalysis, format string) (string, error) {
	if analysis == nil {
		return "", fmt.Errorf("%w: nil analysis", models.ErrInvalidInput)
	}
	f, err := g.formatter(format)
	if err != nil {
		return "", err
	}
	data, err := f.Format(g.Build(analysis))
	if err != nil {
		return "", fmt.Errorf("format report: %w", err)
	}

	stamp := analysis.Timestamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	name := fmt.Sprintf("profilynx_%s_%s.%s",
		sanitizeFilename(analysis.Username), stamp.Format("20060102_150405"), f.FileExtension())
	path := filepath.Join(g.outputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"username": analysis.Username,
		"path":     path,
	}).Info("Report exported")
	return path, nil
}

func (g *Generator) RenderBatch(job models.BatchScanJob, tasks []models.ScanTask, format string) ([]byte, error) {
	f, err := g.formatter(format)
	if err != nil {
		return nil, err
	}
	return f.FormatBatch(g.BuildBatch(job, tasks))
}

func (g *Generator) ExportBatch(job models.BatchScanJob, tasks []models.ScanTask, format string) (string, error) {
	f, err := g.formatter(format)
	if err != nil {
		return "", err
	}
	data, err := f.FormatBatch(g.BuildBatch(job, tasks))
	if err != nil {
		return "", fmt.Errorf("format batch summary: %w", err)
	}

	name := fmt.Sprintf("profilynx_batch_%s.%s", sanitizeFilename(job.ID), f.FileExtension())
	path := filepath.Join(g.outputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write batch summary: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"path":   path,
	}).Info("Batch summary exported")
	return path, nil
}

func (g *Generator) formatter(format string) (Formatter, error) {
	if format == "" {
		format = g.defFormat
	}
	g.mu.RLock()
	f, ok := g.formatters[strings.ToLower(format)]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
	return f, nil
}

func (g *Generator) orderedIDs(analysis *models.ScanAnalysis) []string {
	seen := make(map[string]struct{}, len(analysis.Platforms))
	var ids []string
	if g.catalog != nil {
		for _, id := range g.catalog.IDs() {
			if _, ok := analysis.Platforms[id]; ok {
				ids = append(ids, id)
				seen[id] = struct{}{}
			}
		}
	}
	var rest []string
	for id := range analysis.Platforms {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

func (g *Generator) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"output_dir":     g.outputDir,
		"default_format": g.defFormat,
		"formats":        g.SupportedFormats(),
	}
	if entries, err := os.ReadDir(g.outputDir); err == nil {
		stats["reports"] = len(entries)
	}
	return stats
}

func sanitizeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "report"
	}
	return string(out)
}
