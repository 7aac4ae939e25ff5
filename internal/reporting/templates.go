package reporting

import (
	"strings"
	"text/template"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
	}
}

const scanTemplate = `# Username report: {{ .Metadata.Username }}

- Scan ID: {{ .Metadata.ScanID }}
- Generated: {{ .GeneratedAt.Format "2006-01-02 15:04:05 MST" }} by {{ .Metadata.GeneratedBy }} {{ .Metadata.ToolVersion }}
- Scan duration: {{ .Metadata.Duration }}

## Summary

| Platforms | Found | Blocked | Errors | Risk |
|---|---|---|---|---|
| {{ .Summary.TotalPlatforms }} | {{ .Summary.ProfilesFound }} | {{ .Summary.Blocked }} | {{ .Summary.Errors }} | {{ printf "%.3f" .Summary.RiskScore }} ({{ .Summary.RiskLevel }}) |
{{- if .Summary.ExposureTags }}

Exposure: {{ join .Summary.ExposureTags ", " }}
{{- end }}
{{- if .Summary.Patterns }}

Patterns: {{ join .Summary.Patterns ", " }}
{{- end }}

## Platforms

| Platform | Status | Confidence | URL |
|---|---|---|---|
{{- range .Profiles }}
| {{ .PlatformName }} | {{ .Status }} | {{ printf "%.2f" .Confidence }} | {{ .URL }} |
{{- end }}
{{- if .Errors }}

## Errors
{{ range .Errors }}
- {{ . }}
{{- end }}
{{- end }}
`

const batchTemplate = `# Batch scan summary

- Job ID: {{ .JobID }}
- Usernames: {{ len .Usernames }}
- Completed: {{ .Completed }}, failed: {{ .Failed }}
- Average risk: {{ printf "%.3f" .AverageRiskScore }}

| Username | Status | Found | Risk | Level |
|---|---|---|---|---|
{{- range .Rows }}
| {{ .Username }} | {{ .Status }} | {{ .ProfilesFound }} | {{ printf "%.3f" .RiskScore }} | {{ .RiskLevel }} |
{{- end }}
`
