package models

import "time"

type BehavioralFingerprint struct {
	PrimaryInterest   string `json:"primary_interest" bson:"primary_interest"`
	ActivityDiversity string `json:"activity_diversity" bson:"activity_diversity"`
	PrivacyAwareness  string `json:"privacy_awareness" bson:"privacy_awareness"`
	Monetization      string `json:"monetization" bson:"monetization"`
}

type CorrelationData struct {
	Username    string                `json:"username" bson:"username"`
	Patterns    []string              `json:"patterns" bson:"patterns"`
	Connections map[string][]string   `json:"connections" bson:"connections"`
	Fingerprint BehavioralFingerprint `json:"fingerprint" bson:"fingerprint"`
	Anomalies   []string              `json:"anomalies" bson:"anomalies"`
	Confidence  float64               `json:"confidence" bson:"confidence"`
	GeneratedAt time.Time             `json:"generated_at" bson:"generated_at"`
}
