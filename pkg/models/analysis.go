package models

import "time"

// RiskLevel carries its threshold and display label as explicit fields so
// callers never need a side table keyed on the name.
type RiskLevel struct {
	Name  string  `json:"name" bson:"name"`
	Label string  `json:"label" bson:"label"`
	Floor float64 `json:"floor" bson:"floor"`
}

var (
	RiskLow      = RiskLevel{Name: "low", Label: "Low", Floor: 0.0}
	RiskMedium   = RiskLevel{Name: "medium", Label: "Medium", Floor: 0.40}
	RiskHigh     = RiskLevel{Name: "high", Label: "High", Floor: 0.60}
	RiskCritical = RiskLevel{Name: "critical", Label: "Critical", Floor: 0.75}
)

func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= RiskCritical.Floor:
		return RiskCritical
	case score >= RiskHigh.Floor:
		return RiskHigh
	case score >= RiskMedium.Floor:
		return RiskMedium
	default:
		return RiskLow
	}
}

type ScanAnalysis struct {
	Username       string                     `json:"username" bson:"username"`
	ScanID         string                     `json:"scan_id" bson:"scan_id"`
	Timestamp      time.Time                  `json:"timestamp" bson:"timestamp"`
	TotalPlatforms int                        `json:"total_platforms" bson:"total_platforms"`
	ProfilesFound  int                        `json:"profiles_found" bson:"profiles_found"`
	Duration       time.Duration              `json:"duration" bson:"duration"`
	RiskScore      float64                    `json:"risk_score" bson:"risk_score"`
	RiskLevel      RiskLevel                  `json:"risk_level" bson:"risk_level"`
	Platforms      map[string]*PlatformResult `json:"platforms" bson:"platforms"`
	Correlation    *CorrelationData           `json:"correlation,omitempty" bson:"correlation"`
	Errors         []string                   `json:"errors,omitempty" bson:"errors"`
	Metadata       map[string]interface{}     `json:"metadata,omitempty" bson:"metadata"`
}

func (a *ScanAnalysis) FoundResults() []*PlatformResult {
	if a == nil {
		return nil
	}
	out := make([]*PlatformResult, 0, a.ProfilesFound)
	for _, r := range a.Platforms {
		if r != nil && r.Found {
			out = append(out, r)
		}
	}
	return out
}
