package models

type Audience string

const (
	AudiencePublic       Audience = "public"
	AudienceConfigurable Audience = "configurable"
	AudiencePrivate      Audience = "private"
)

func (a Audience) Valid() bool {
	switch a {
	case AudiencePublic, AudienceConfigurable, AudiencePrivate:
		return true
	}
	return false
}

type DetectionMethod string

const (
	DetectStatusCode   DetectionMethod = "status_code"
	DetectBodyContains DetectionMethod = "body_contains"
	DetectAPIJSON      DetectionMethod = "api_json"
)

func (m DetectionMethod) Valid() bool {
	switch m {
	case DetectStatusCode, DetectBodyContains, DetectAPIJSON:
		return true
	}
	return false
}

type DetectionRule struct {
	Method         DetectionMethod `json:"method" yaml:"method"`
	FoundStatus    int             `json:"found_status,omitempty" yaml:"found_status,omitempty"`
	NotFoundStatus int             `json:"not_found_status,omitempty" yaml:"not_found_status,omitempty"`
	PresentText    string          `json:"present_text,omitempty" yaml:"present_text,omitempty"`
	AbsentText     string          `json:"absent_text,omitempty" yaml:"absent_text,omitempty"`
	JSONField      string          `json:"json_field,omitempty" yaml:"json_field,omitempty"`
	JSONEquals     string          `json:"json_equals,omitempty" yaml:"json_equals,omitempty"`
	DeadPageHash   string          `json:"dead_page_hash,omitempty" yaml:"dead_page_hash,omitempty"`
}

type PlatformDefinition struct {
	ID           string        `json:"id" yaml:"id" bson:"id"`
	Name         string        `json:"name" yaml:"name" bson:"name"`
	URLTemplate  string        `json:"url_template" yaml:"url_template" bson:"url_template"`
	Detection    DetectionRule `json:"detection" yaml:"detection" bson:"detection"`
	Category     string        `json:"category" yaml:"category" bson:"category"`
	Audience     Audience      `json:"audience" yaml:"audience" bson:"audience"`
	RiskWeight   float64       `json:"risk_weight" yaml:"risk_weight" bson:"risk_weight"`
	ExposureTags []string      `json:"exposure_tags" yaml:"exposure_tags" bson:"exposure_tags"`
	Monetization bool          `json:"monetization,omitempty" yaml:"monetization,omitempty" bson:"monetization"`
}
