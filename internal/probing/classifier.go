package probing

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Verdict is the classifier's final word on one probe response. Probes never
// escalate past this point; whatever happened becomes data on the result.
type Verdict struct {
	Status     models.ProbeStatus
	Found      bool
	Indicators []string
	Detail     string
	Confidence float64
}

// Confidence grades by evidence strength. A body or API match beats a bare
// status code; a fallback rule with no explicit signal ranks below both.
const (
	confidenceContentMatch = 0.95
	confidenceStatusMatch  = 0.85
	confidenceInferred     = 0.7
	confidenceBlocked      = 0.3
)

// Classifier evaluates platform detection rules against raw responses and
// recognizes anti-bot interference that masks the real answer.
type Classifier struct {
	challengePatterns []*regexp.Regexp
	logger            *logrus.Logger
	mu                sync.RWMutex
}

func NewClassifier(logger *logrus.Logger) *Classifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Classifier{
		challengePatterns: compileChallengePatterns(),
		logger:            logger,
	}
}

func compileChallengePatterns() []*regexp.Regexp {
	patterns := []string{
		`(?i)<title[^>]*>\s*attention required`,
		`(?i)<title[^>]*>\s*just a moment`,
		`(?i)cf-challenge`,
		`(?i)cf-browser-verification`,
		`(?i)captcha`,
		`(?i)are you a robot`,
		`(?i)verify you are human`,
		`(?i)unusual traffic from your`,
		`(?i)ddos protection by`,
		`(?i)request blocked`,
		`(?i)perimeterx`,
		`(?i)px-captcha`,
	}

	var compiled []*regexp.Regexp
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return compiled
}

// Classify maps a completed HTTP exchange to a probe status using the
// platform's detection rule. Blocking signals win over rule evaluation: a
// challenge page proves nothing about the profile either way.
func (c *Classifier) Classify(def *models.PlatformDefinition, username string, statusCode int, body []byte) Verdict {
	if statusCode == 403 || statusCode == 999 {
		return Verdict{
			Status:     models.StatusBlocked,
			Indicators: []string{fmt.Sprintf("anti_bot_status:%d", statusCode)},
			Confidence: confidenceBlocked,
		}
	}
	if statusCode == 429 {
		return Verdict{
			Status:     models.StatusBlocked,
			Indicators: []string{"rate_limited"},
			Confidence: confidenceBlocked,
		}
	}
	if pattern := c.matchChallenge(body); pattern != "" {
		return Verdict{
			Status:     models.StatusBlocked,
			Indicators: []string{"challenge_page"},
			Detail:     pattern,
			Confidence: confidenceBlocked,
		}
	}

	rule := def.Detection
	switch rule.Method {
	case models.DetectStatusCode:
		return c.classifyStatusCode(rule, statusCode)
	case models.DetectBodyContains:
		return c.classifyBody(rule, username, statusCode, body)
	case models.DetectAPIJSON:
		return c.classifyJSON(rule, username, statusCode, body)
	default:
		return Verdict{
			Status: models.StatusError,
			Detail: fmt.Sprintf("unsupported detection method %q", rule.Method),
		}
	}
}

func (c *Classifier) classifyStatusCode(rule models.DetectionRule, statusCode int) Verdict {
	switch {
	case statusCode == rule.FoundStatus:
		return Verdict{
			Status:     models.StatusFound,
			Found:      true,
			Indicators: []string{fmt.Sprintf("status_match:%d", statusCode)},
			Confidence: confidenceStatusMatch,
		}
	case rule.NotFoundStatus != 0 && statusCode == rule.NotFoundStatus:
		return Verdict{Status: models.StatusNotFound, Confidence: confidenceStatusMatch}
	case rule.NotFoundStatus == 0:
		return Verdict{Status: models.StatusNotFound, Confidence: confidenceInferred}
	default:
		return Verdict{
			Status: models.StatusError,
			Detail: fmt.Sprintf("unexpected status %d", statusCode),
		}
	}
}

func (c *Classifier) classifyBody(rule models.DetectionRule, username string, statusCode int, body []byte) Verdict {
	if rule.NotFoundStatus != 0 && statusCode == rule.NotFoundStatus {
		return Verdict{Status: models.StatusNotFound, Confidence: confidenceStatusMatch}
	}
	if statusCode < 200 || statusCode >= 400 {
		return Verdict{
			Status: models.StatusError,
			Detail: fmt.Sprintf("unexpected status %d", statusCode),
		}
	}

	if rule.DeadPageHash != "" && NormalizedBodyHash(body) == rule.DeadPageHash {
		return Verdict{
			Status:     models.StatusNotFound,
			Indicators: []string{"dead_page_hash"},
			Confidence: confidenceContentMatch,
		}
	}

	text := string(body)
	present := expandUsername(rule.PresentText, username)
	absent := expandUsername(rule.AbsentText, username)

	if absent != "" && strings.Contains(text, absent) {
		return Verdict{Status: models.StatusNotFound, Confidence: confidenceContentMatch}
	}
	if present != "" && !strings.Contains(text, present) {
		return Verdict{Status: models.StatusNotFound, Confidence: confidenceInferred}
	}

	indicators := []string{"body_marker"}
	confidence := confidenceContentMatch
	if present == "" {
		indicators = []string{"absent_marker_missing"}
		confidence = confidenceInferred
	}
	return Verdict{
		Status:     models.StatusFound,
		Found:      true,
		Indicators: indicators,
		Confidence: confidence,
	}
}

func (c *Classifier) classifyJSON(rule models.DetectionRule, username string, statusCode int, body []byte) Verdict {
	if rule.NotFoundStatus != 0 && statusCode == rule.NotFoundStatus {
		return Verdict{Status: models.StatusNotFound, Confidence: confidenceStatusMatch}
	}
	if statusCode < 200 || statusCode >= 300 {
		return Verdict{
			Status: models.StatusError,
			Detail: fmt.Sprintf("unexpected status %d", statusCode),
		}
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Verdict{
			Status: models.StatusError,
			Detail: fmt.Sprintf("response parse failed: %v", err),
		}
	}

	value, ok := lookupJSONPath(doc, rule.JSONField)
	if !ok || value == nil {
		return Verdict{Status: models.StatusNotFound, Confidence: confidenceInferred}
	}

	if rule.JSONEquals != "" {
		want := expandUsername(rule.JSONEquals, username)
		if !strings.EqualFold(stringifyJSONValue(value), want) {
			return Verdict{Status: models.StatusNotFound, Confidence: confidenceContentMatch}
		}
	}

	return Verdict{
		Status:     models.StatusFound,
		Found:      true,
		Indicators: []string{fmt.Sprintf("json_field:%s", rule.JSONField)},
		Confidence: confidenceContentMatch,
	}
}

// ClassifyFailure handles probes that never produced a response.
func (c *Classifier) ClassifyFailure(err error) Verdict {
	if IsTimeout(err) {
		return Verdict{
			Status: models.StatusTimeout,
			Detail: "request deadline exceeded",
		}
	}
	detail := "request failed"
	if err != nil {
		detail = err.Error()
	}
	return Verdict{
		Status: models.StatusError,
		Detail: detail,
	}
}

func (c *Classifier) matchChallenge(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, pattern := range c.challengePatterns {
		if pattern.Match(body) {
			return pattern.String()
		}
	}
	return ""
}

func (c *Classifier) AddChallengePattern(pattern string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challengePatterns = append(c.challengePatterns, compiled)
	return nil
}

func (c *Classifier) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]interface{}{
		"challenge_patterns": len(c.challengePatterns),
	}
}

// NormalizedBodyHash hashes a whitespace-collapsed body. Platforms that soft
// 404 with a stable placeholder page get that page's hash in their detection
// rule, and matching bodies classify as not_found.
func NormalizedBodyHash(body []byte) string {
	normalized := strings.Join(strings.Fields(string(body)), " ")
	return fmt.Sprintf("%016x", xxh3.Hash([]byte(normalized)))
}

func expandUsername(template, username string) string {
	return strings.ReplaceAll(template, "{username}", username)
}

func lookupJSONPath(doc interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	current := doc
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			value, ok := node[part]
			if !ok {
				return nil, false
			}
			current = value
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func stringifyJSONValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
