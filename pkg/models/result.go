package models

import "time"

type ProbeStatus string

const (
	StatusPending  ProbeStatus = "pending"
	StatusFound    ProbeStatus = "found"
	StatusNotFound ProbeStatus = "not_found"
	StatusBlocked  ProbeStatus = "blocked"
	StatusError    ProbeStatus = "error"
	StatusTimeout  ProbeStatus = "timeout"
)

func (s ProbeStatus) Terminal() bool {
	return s != StatusPending
}

type PlatformResult struct {
	Platform       string            `json:"platform" bson:"platform"`
	PlatformName   string            `json:"platform_name" bson:"platform_name"`
	Found          bool              `json:"found" bson:"found"`
	URL            string            `json:"url" bson:"url"`
	Status         ProbeStatus       `json:"status" bson:"status"`
	HTTPStatus     int               `json:"http_status,omitempty" bson:"http_status"`
	ResponseTime   time.Duration     `json:"response_time" bson:"response_time"`
	Error          string            `json:"error,omitempty" bson:"error"`
	Timestamp      time.Time         `json:"timestamp" bson:"timestamp"`
	ContentLength  int64             `json:"content_length,omitempty" bson:"content_length"`
	ContentPreview string            `json:"content_preview,omitempty" bson:"content_preview"`
	Headers        map[string]string `json:"headers,omitempty" bson:"headers"`
	Indicators     []string          `json:"indicators,omitempty" bson:"indicators"`
	Attempts       int               `json:"attempts" bson:"attempts"`
	Confidence     float64           `json:"confidence" bson:"confidence"`
}
