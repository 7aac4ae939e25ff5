package reporting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

type jsonFormatter struct{}

func (f *jsonFormatter) Format(report *Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

func (f *jsonFormatter) FormatBatch(summary *BatchSummary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

func (f *jsonFormatter) FileExtension() string { return "json" }

type csvFormatter struct{}

func (f *csvFormatter) Format(report *Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"platform", "name", "category", "status", "url", "http_status", "confidence", "response_time"})
	for _, p := range report.Profiles {
		_ = w.Write([]string{
			p.Platform,
			p.PlatformName,
			p.Category,
			p.Status,
			p.URL,
			strconv.Itoa(p.HTTPStatus),
			strconv.FormatFloat(p.Confidence, 'f', 2, 64),
			p.ResponseTime,
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (f *csvFormatter) FormatBatch(summary *BatchSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"username", "status", "profiles_found", "risk_score", "risk_level", "error"})
	for _, r := range summary.Rows {
		_ = w.Write([]string{
			r.Username,
			r.Status,
			strconv.Itoa(r.ProfilesFound),
			strconv.FormatFloat(r.RiskScore, 'f', 3, 64),
			r.RiskLevel,
			r.Error,
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (f *csvFormatter) FileExtension() string { return "csv" }

type markdownFormatter struct {
	templates *TemplateManager
}

func (f *markdownFormatter) Format(report *Report) ([]byte, error) {
	return f.render("scan.md", report)
}

func (f *markdownFormatter) FormatBatch(summary *BatchSummary) ([]byte, error) {
	return f.render("batch.md", summary)
}

func (f *markdownFormatter) render(name string, data interface{}) ([]byte, error) {
	tpl, ok := f.templates.Get(name)
	if !ok {
		return nil, fmt.Errorf("template %s not registered", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (f *markdownFormatter) FileExtension() string { return "md" }
