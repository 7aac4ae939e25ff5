package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	return l
}

func TestLoad_Embedded(t *testing.T) {
	c, err := catalog.Load(testLogger())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, c.Len(), 40)
	assert.GreaterOrEqual(t, c.CategoryCount(), 8)
	assert.Greater(t, c.MaxExposureTags(), 0)

	gh, ok := c.Get("github")
	require.True(t, ok)
	assert.Equal(t, "GitHub", gh.Name)
	assert.Equal(t, models.AudiencePublic, gh.Audience)
	assert.Equal(t, models.DetectStatusCode, gh.Detection.Method)
	assert.Equal(t, 200, gh.Detection.FoundStatus)
	assert.InDelta(t, 0.6, gh.RiskWeight, 1e-9)
}

func TestSelect_PreservesCatalogOrder(t *testing.T) {
	c, err := catalog.Load(testLogger())
	require.NoError(t, err)

	ids := c.IDs()
	require.GreaterOrEqual(t, len(ids), 3)

	// Request in reverse order; result must come back in catalog order.
	subset, err := c.Select([]string{ids[2], ids[0], ids[1]})
	require.NoError(t, err)
	require.Len(t, subset, 3)
	assert.Equal(t, ids[0], subset[0].ID)
	assert.Equal(t, ids[1], subset[1].ID)
	assert.Equal(t, ids[2], subset[2].ID)
}

func TestSelect_UnknownPlatform(t *testing.T) {
	c, err := catalog.Load(testLogger())
	require.NoError(t, err)

	_, err = c.Select([]string{"github", "no_such_platform"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnknownPlatform)
}

func TestSelect_EmptyReturnsAll(t *testing.T) {
	c, err := catalog.Load(testLogger())
	require.NoError(t, err)

	all, err := c.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, c.Len())
}

func TestFilter_Categories(t *testing.T) {
	c, err := catalog.Load(testLogger())
	require.NoError(t, err)

	dev := c.Filter([]string{"development"})
	require.Greater(t, dev.Len(), 0)
	assert.Less(t, dev.Len(), c.Len())
	for _, p := range dev.All() {
		assert.Equal(t, "development", p.Category)
	}

	// Empty filter is a passthrough.
	assert.Equal(t, c.Len(), c.Filter(nil).Len())
}

func TestLoadFile_InvalidDefinitions(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			name: "missing username placeholder",
			yaml: `
platforms:
  - id: broken
    name: Broken
    url_template: "https://broken.example.com/profile"
    category: social
    audience: public
    risk_weight: 0.5
    detection: {method: status_code, found_status: 200}
`,
		},
		{
			name: "duplicate id",
			yaml: `
platforms:
  - id: dup
    name: One
    url_template: "https://one.example.com/{username}"
    category: social
    audience: public
    risk_weight: 0.5
    detection: {method: status_code, found_status: 200}
  - id: dup
    name: Two
    url_template: "https://two.example.com/{username}"
    category: social
    audience: public
    risk_weight: 0.5
    detection: {method: status_code, found_status: 200}
`,
		},
		{
			name: "risk weight out of range",
			yaml: `
platforms:
  - id: heavy
    name: Heavy
    url_template: "https://heavy.example.com/{username}"
    category: social
    audience: public
    risk_weight: 1.5
    detection: {method: status_code, found_status: 200}
`,
		},
		{
			name: "unknown detection method",
			yaml: `
platforms:
  - id: odd
    name: Odd
    url_template: "https://odd.example.com/{username}"
    category: social
    audience: public
    risk_weight: 0.5
    detection: {method: telepathy}
`,
		},
		{
			name: "body_contains without text",
			yaml: `
platforms:
  - id: vague
    name: Vague
    url_template: "https://vague.example.com/{username}"
    category: social
    audience: public
    risk_weight: 0.5
    detection: {method: body_contains}
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))

			_, err := catalog.LoadFile(path, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestConnectionsAmong(t *testing.T) {
	c, err := catalog.Load(testLogger())
	require.NoError(t, err)

	conns := c.ConnectionsAmong([]string{"github", "gitlab", "codepen"})
	require.Contains(t, conns, "github")
	assert.ElementsMatch(t, []string{"gitlab", "codepen"}, conns["github"])

	// A platform with no found affine partners is omitted entirely.
	solo := c.ConnectionsAmong([]string{"github"})
	assert.Empty(t, solo)
}

func TestMonetizationSet(t *testing.T) {
	c, err := catalog.Load(testLogger())
	require.NoError(t, err)

	set := c.MonetizationSet()
	assert.Contains(t, set, "patreon")
	assert.Contains(t, set, "kofi")
	assert.NotContains(t, set, "github")
}
