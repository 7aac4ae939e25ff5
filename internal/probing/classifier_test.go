package probing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/probing"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

func statusCodePlatform(found, notFound int) models.PlatformDefinition {
	return models.PlatformDefinition{
		ID:          "testplat",
		Name:        "TestPlat",
		URLTemplate: "https://testplat.example/{username}",
		Category:    "social",
		Audience:    models.AudiencePublic,
		RiskWeight:  0.5,
		Detection: models.DetectionRule{
			Method:         models.DetectStatusCode,
			FoundStatus:    found,
			NotFoundStatus: notFound,
		},
	}
}

func TestClassify_StatusCodeRule(t *testing.T) {
	c := probing.NewClassifier(nil)
	def := statusCodePlatform(200, 404)

	cases := []struct {
		name       string
		statusCode int
		body       string
		wantStatus models.ProbeStatus
		wantFound  bool
	}{
		{"matching found status", 200, "<html>profile</html>", models.StatusFound, true},
		{"matching not found status", 404, "nope", models.StatusNotFound, false},
		{"unexpected status", 301, "", models.StatusError, false},
		{"forbidden is blocked", 403, "", models.StatusBlocked, false},
		{"linkedin style 999", 999, "", models.StatusBlocked, false},
		{"throttled is blocked", 429, "", models.StatusBlocked, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := c.Classify(&def, "alice", tc.statusCode, []byte(tc.body))
			assert.Equal(t, tc.wantStatus, v.Status)
			assert.Equal(t, tc.wantFound, v.Found)
		})
	}
}

func TestClassify_ChallengePageBlocks(t *testing.T) {
	c := probing.NewClassifier(nil)
	def := statusCodePlatform(200, 404)

	body := `<html><head><title>Just a moment...</title></head><body>Checking your browser</body></html>`
	v := c.Classify(&def, "alice", 200, []byte(body))

	assert.Equal(t, models.StatusBlocked, v.Status)
	assert.False(t, v.Found)
	assert.Contains(t, v.Indicators, "challenge_page")
}

func TestClassify_BodyContainsRule(t *testing.T) {
	c := probing.NewClassifier(nil)
	def := models.PlatformDefinition{
		ID:          "forum",
		Name:        "Forum",
		URLTemplate: "https://forum.example/u/{username}",
		Category:    "community",
		Audience:    models.AudiencePublic,
		RiskWeight:  0.3,
		Detection: models.DetectionRule{
			Method:     models.DetectBodyContains,
			AbsentText: "No users matched your search",
		},
	}

	t.Run("absent marker present means not found", func(t *testing.T) {
		v := c.Classify(&def, "alice", 200, []byte("No users matched your search"))
		assert.Equal(t, models.StatusNotFound, v.Status)
	})

	t.Run("absent marker missing means found", func(t *testing.T) {
		v := c.Classify(&def, "alice", 200, []byte("<h1>alice's profile</h1>"))
		assert.Equal(t, models.StatusFound, v.Status)
		assert.True(t, v.Found)
	})

	t.Run("present text expands username", func(t *testing.T) {
		withPresent := def
		withPresent.Detection = models.DetectionRule{
			Method:      models.DetectBodyContains,
			PresentText: `data-user="{username}"`,
		}
		v := c.Classify(&withPresent, "alice", 200, []byte(`<div data-user="alice">`))
		assert.True(t, v.Found)

		v = c.Classify(&withPresent, "bob", 200, []byte(`<div data-user="alice">`))
		assert.Equal(t, models.StatusNotFound, v.Status)
	})

	t.Run("not found status short circuits", func(t *testing.T) {
		withStatus := def
		withStatus.Detection.NotFoundStatus = 404
		v := c.Classify(&withStatus, "alice", 404, []byte("irrelevant"))
		assert.Equal(t, models.StatusNotFound, v.Status)
	})
}

func TestClassify_DeadPageHash(t *testing.T) {
	c := probing.NewClassifier(nil)
	placeholder := []byte("  This   page is\n\navailable  ")
	def := models.PlatformDefinition{
		ID:          "blog",
		Name:        "Blog",
		URLTemplate: "https://{username}.blog.example",
		Category:    "blogging",
		Audience:    models.AudiencePublic,
		RiskWeight:  0.2,
		Detection: models.DetectionRule{
			Method:       models.DetectBodyContains,
			PresentText:  "profile-header",
			DeadPageHash: probing.NormalizedBodyHash(placeholder),
		},
	}

	t.Run("placeholder page is not found despite 200", func(t *testing.T) {
		v := c.Classify(&def, "alice", 200, []byte("This page is available"))
		assert.Equal(t, models.StatusNotFound, v.Status)
		assert.Contains(t, v.Indicators, "dead_page_hash")
	})

	t.Run("real profile still matches", func(t *testing.T) {
		v := c.Classify(&def, "alice", 200, []byte(`<div class="profile-header">alice</div>`))
		assert.True(t, v.Found)
	})
}

func TestClassify_APIJSONRule(t *testing.T) {
	c := probing.NewClassifier(nil)
	def := models.PlatformDefinition{
		ID:          "devhub",
		Name:        "DevHub",
		URLTemplate: "https://api.devhub.example/users/{username}",
		Category:    "development",
		Audience:    models.AudiencePublic,
		RiskWeight:  0.6,
		Detection: models.DetectionRule{
			Method:         models.DetectAPIJSON,
			NotFoundStatus: 404,
			JSONField:      "data.login",
			JSONEquals:     "{username}",
		},
	}

	t.Run("nested field equals username", func(t *testing.T) {
		v := c.Classify(&def, "Alice", 200, []byte(`{"data":{"login":"alice"}}`))
		assert.True(t, v.Found)
	})

	t.Run("field mismatch", func(t *testing.T) {
		v := c.Classify(&def, "bob", 200, []byte(`{"data":{"login":"alice"}}`))
		assert.Equal(t, models.StatusNotFound, v.Status)
	})

	t.Run("missing field", func(t *testing.T) {
		v := c.Classify(&def, "alice", 200, []byte(`{"data":{}}`))
		assert.Equal(t, models.StatusNotFound, v.Status)
	})

	t.Run("array index path", func(t *testing.T) {
		arrDef := def
		arrDef.Detection.JSONField = "users.0.username"
		v := c.Classify(&arrDef, "alice", 200, []byte(`{"users":[{"username":"alice"}]}`))
		assert.True(t, v.Found)
	})

	t.Run("not found status", func(t *testing.T) {
		v := c.Classify(&def, "alice", 404, []byte(`{"message":"Not Found"}`))
		assert.Equal(t, models.StatusNotFound, v.Status)
	})

	t.Run("malformed json is an error", func(t *testing.T) {
		v := c.Classify(&def, "alice", 200, []byte(`<html>surprise</html>`))
		assert.Equal(t, models.StatusError, v.Status)
		assert.NotEmpty(t, v.Detail)
	})
}

func TestClassifyFailure(t *testing.T) {
	c := probing.NewClassifier(nil)

	v := c.ClassifyFailure(context.DeadlineExceeded)
	assert.Equal(t, models.StatusTimeout, v.Status)

	v = c.ClassifyFailure(errors.New("connection refused"))
	assert.Equal(t, models.StatusError, v.Status)
	assert.Contains(t, v.Detail, "connection refused")
}

func TestAddChallengePattern(t *testing.T) {
	c := probing.NewClassifier(nil)
	def := statusCodePlatform(200, 404)

	require.NoError(t, c.AddChallengePattern(`(?i)custom waf block`))
	v := c.Classify(&def, "alice", 200, []byte("CUSTOM WAF BLOCK page"))
	assert.Equal(t, models.StatusBlocked, v.Status)

	assert.Error(t, c.AddChallengePattern(`([`))
}

func TestClassify_ConfidenceGrading(t *testing.T) {
	c := probing.NewClassifier(nil)

	statusDef := statusCodePlatform(200, 404)
	v := c.Classify(&statusDef, "alice", 200, nil)
	assert.InDelta(t, 0.85, v.Confidence, 0.0001)

	v = c.Classify(&statusDef, "alice", 403, nil)
	assert.InDelta(t, 0.3, v.Confidence, 0.0001)

	bodyDef := statusCodePlatform(0, 0)
	bodyDef.Detection = models.DetectionRule{
		Method:      models.DetectBodyContains,
		PresentText: `data-user="{username}"`,
	}
	v = c.Classify(&bodyDef, "alice", 200, []byte(`<div data-user="alice"></div>`))
	assert.InDelta(t, 0.95, v.Confidence, 0.0001)

	v = c.ClassifyFailure(errors.New("connection refused"))
	assert.Zero(t, v.Confidence)
}

func TestNormalizedBodyHash_CollapsesWhitespace(t *testing.T) {
	a := probing.NormalizedBodyHash([]byte("hello   world\n"))
	b := probing.NormalizedBodyHash([]byte("  hello world"))
	c := probing.NormalizedBodyHash([]byte("hello worlds"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
