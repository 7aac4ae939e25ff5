package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

//go:embed platforms.yaml
var embeddedCatalog []byte

type catalogFile struct {
	Version   int                         `yaml:"version"`
	Platforms []models.PlatformDefinition `yaml:"platforms"`
}

// Catalog is immutable after load; every accessor is safe for concurrent use.
type Catalog struct {
	platforms   []models.PlatformDefinition
	index       map[string]int
	categories  []string
	maxExposure int
	logger      *logrus.Logger
}

func Load(logger *logrus.Logger) (*Catalog, error) {
	return build(embeddedCatalog, "embedded", logger)
}

func LoadFile(path string, logger *logrus.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return build(data, path, logger)
}

func build(data []byte, source string, logger *logrus.Logger) (*Catalog, error) {
	if logger == nil {
		logger = logrus.New()
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", source, err)
	}
	if len(file.Platforms) == 0 {
		return nil, fmt.Errorf("catalog %s contains no platforms", source)
	}

	c := &Catalog{
		platforms: file.Platforms,
		index:     make(map[string]int, len(file.Platforms)),
		logger:    logger,
	}

	seenCategory := make(map[string]struct{})
	for i, p := range c.platforms {
		if err := validateDefinition(p); err != nil {
			return nil, fmt.Errorf("catalog %s: platform %q: %w", source, p.ID, err)
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate platform id %q", source, p.ID)
		}
		c.index[p.ID] = i
		if _, ok := seenCategory[p.Category]; !ok {
			seenCategory[p.Category] = struct{}{}
			c.categories = append(c.categories, p.Category)
		}
		c.maxExposure += len(p.ExposureTags)
	}

	logger.WithFields(logrus.Fields{
		"source":     source,
		"platforms":  len(c.platforms),
		"categories": len(c.categories),
	}).Info("Platform catalog loaded")

	return c, nil
}

func validateDefinition(p models.PlatformDefinition) error {
	if p.ID == "" {
		return fmt.Errorf("missing id")
	}
	if p.Name == "" {
		return fmt.Errorf("missing name")
	}
	if !strings.Contains(p.URLTemplate, "{username}") {
		return fmt.Errorf("url_template must contain {username}")
	}
	if p.Category == "" {
		return fmt.Errorf("missing category")
	}
	if !p.Audience.Valid() {
		return fmt.Errorf("invalid audience %q", p.Audience)
	}
	if p.RiskWeight < 0 || p.RiskWeight > 1 {
		return fmt.Errorf("risk_weight %v outside [0,1]", p.RiskWeight)
	}
	if !p.Detection.Method.Valid() {
		return fmt.Errorf("unknown detection method %q", p.Detection.Method)
	}
	switch p.Detection.Method {
	case models.DetectStatusCode:
		if p.Detection.FoundStatus == 0 {
			return fmt.Errorf("status_code detection requires found_status")
		}
	case models.DetectBodyContains:
		if p.Detection.PresentText == "" && p.Detection.AbsentText == "" {
			return fmt.Errorf("body_contains detection requires present_text or absent_text")
		}
	case models.DetectAPIJSON:
		if p.Detection.JSONField == "" || p.Detection.JSONEquals == "" {
			return fmt.Errorf("api_json detection requires json_field and json_equals")
		}
	}
	return nil
}

// All returns the platform definitions in catalog order.
func (c *Catalog) All() []models.PlatformDefinition {
	out := make([]models.PlatformDefinition, len(c.platforms))
	copy(out, c.platforms)
	return out
}

func (c *Catalog) Get(id string) (models.PlatformDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.PlatformDefinition{}, false
	}
	return c.platforms[i], true
}

// Select returns the definitions for the given ids in catalog order,
// regardless of the order the ids were supplied in.
func (c *Catalog) Select(ids []string) ([]models.PlatformDefinition, error) {
	if len(ids) == 0 {
		return c.All(), nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := c.index[id]; !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownPlatform, id)
		}
		want[id] = struct{}{}
	}
	out := make([]models.PlatformDefinition, 0, len(want))
	for _, p := range c.platforms {
		if _, ok := want[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Filter returns a sub-catalog restricted to the given categories. An empty
// filter returns the receiver unchanged.
func (c *Catalog) Filter(categories []string) *Catalog {
	if len(categories) == 0 {
		return c
	}
	keep := make(map[string]struct{}, len(categories))
	for _, cat := range categories {
		keep[strings.ToLower(cat)] = struct{}{}
	}

	sub := &Catalog{
		index:  make(map[string]int),
		logger: c.logger,
	}
	seenCategory := make(map[string]struct{})
	for _, p := range c.platforms {
		if _, ok := keep[p.Category]; !ok {
			continue
		}
		sub.index[p.ID] = len(sub.platforms)
		sub.platforms = append(sub.platforms, p)
		if _, ok := seenCategory[p.Category]; !ok {
			seenCategory[p.Category] = struct{}{}
			sub.categories = append(sub.categories, p.Category)
		}
		sub.maxExposure += len(p.ExposureTags)
	}
	return sub
}

// Categories returns the distinct categories in order of first appearance.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

func (c *Catalog) CategoryCount() int {
	return len(c.categories)
}

// MaxExposureTags is the catalog-wide sum of exposure tags, the denominator
// for the exposure-breadth risk factor.
func (c *Catalog) MaxExposureTags() int {
	return c.maxExposure
}

func (c *Catalog) Len() int {
	return len(c.platforms)
}

func (c *Catalog) IDs() []string {
	out := make([]string, len(c.platforms))
	for i, p := range c.platforms {
		out[i] = p.ID
	}
	return out
}

func (c *Catalog) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total_platforms":   len(c.platforms),
		"total_categories":  len(c.categories),
		"max_exposure_tags": c.maxExposure,
		"monetization_set":  len(c.MonetizationSet()),
	}
}
