package orchestration

import (
	"sort"
	"time"

	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// ScanProfile is a named preset bundling a catalog subset with probe
// timing overrides. Zero-valued fields leave the base config untouched.
type ScanProfile struct {
	Name          string
	Description   string
	Categories    []string
	MaxPlatforms  int
	JitterMin     time.Duration
	JitterMax     time.Duration
	RetryAttempts int
}

var scanProfiles = map[string]ScanProfile{
	"quick": {
		Name:          "quick",
		Description:   "Highest-signal platforms only, minimal pacing",
		MaxPlatforms:  8,
		JitterMin:     50 * time.Millisecond,
		JitterMax:     200 * time.Millisecond,
		RetryAttempts: 1,
	},
	"standard": {
		Name:        "standard",
		Description: "Full catalog with configured defaults",
	},
	"thorough": {
		Name:          "thorough",
		Description:   "Full catalog, extra retries and wide jitter",
		JitterMin:     200 * time.Millisecond,
		JitterMax:     time.Second,
		RetryAttempts: 3,
	},
}

// ResolveProfile returns the preset for name. An empty name selects
// the standard profile.
func ResolveProfile(name string) (ScanProfile, bool) {
	if name == "" {
		name = "standard"
	}
	p, ok := scanProfiles[name]
	return p, ok
}

func ProfileNames() []string {
	names := make([]string, 0, len(scanProfiles))
	for name := range scanProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PlatformIDs selects the profile's catalog subset. A nil return means
// the whole catalog.
func (p ScanProfile) PlatformIDs(cat *catalog.Catalog) []string {
	if cat == nil {
		return nil
	}
	source := cat
	if len(p.Categories) > 0 {
		source = cat.Filter(p.Categories)
	}
	if p.MaxPlatforms <= 0 || source.Len() <= p.MaxPlatforms {
		if source == cat {
			return nil
		}
		return source.IDs()
	}

	defs := source.All()
	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].RiskWeight > defs[j].RiskWeight
	})
	ids := make([]string, 0, p.MaxPlatforms)
	for _, def := range defs[:p.MaxPlatforms] {
		ids = append(ids, def.ID)
	}
	return ids
}

// Apply overlays the profile's timing overrides on a probe config and
// returns the result.
func (p ScanProfile) Apply(cfg models.ProbeConfig) models.ProbeConfig {
	if p.JitterMin > 0 {
		cfg.Timing.JitterMin = p.JitterMin
	}
	if p.JitterMax > 0 {
		cfg.Timing.JitterMax = p.JitterMax
	}
	if p.RetryAttempts > 0 {
		cfg.RetryAttempts = p.RetryAttempts
	}
	return cfg
}
