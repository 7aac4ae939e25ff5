package catalog

// affinityTable maps a platform to the platforms an account holder is likely
// to also hold. Pairs are curated, not symmetric.
var affinityTable = map[string][]string{
	"github":        {"gitlab", "codepen", "stackoverflow"},
	"gitlab":        {"github", "devto"},
	"bitbucket":     {"github", "gitlab"},
	"codepen":       {"github", "dribbble"},
	"stackoverflow": {"github", "devto"},
	"devto":         {"github", "medium"},
	"twitter":       {"instagram", "mastodon", "threads"},
	"instagram":     {"tiktok", "facebook", "threads"},
	"facebook":      {"instagram", "linkedin"},
	"tiktok":        {"instagram", "youtube", "snapchat"},
	"threads":       {"instagram", "twitter"},
	"mastodon":      {"twitter", "keybase"},
	"telegram":      {"twitter", "instagram"},
	"linktree":      {"instagram", "youtube", "patreon"},
	"linkedin":      {"xing", "wellfound"},
	"xing":          {"linkedin"},
	"wellfound":     {"linkedin", "github"},
	"youtube":       {"twitch", "patreon", "soundcloud"},
	"twitch":        {"youtube", "steam"},
	"soundcloud":    {"spotify", "youtube"},
	"spotify":       {"soundcloud"},
	"medium":        {"substack", "devto"},
	"tumblr":        {"deviantart", "twitter"},
	"wordpress":     {"medium", "blogger"},
	"blogger":       {"wordpress"},
	"substack":      {"medium", "patreon"},
	"reddit":        {"hackernews", "quora"},
	"hackernews":    {"github", "reddit"},
	"keybase":       {"github", "mastodon", "reddit"},
	"quora":         {"reddit", "goodreads"},
	"goodreads":     {"quora"},
	"steam":         {"twitch", "roblox", "chess"},
	"roblox":        {"steam"},
	"chess":         {"steam"},
	"behance":       {"dribbble", "flickr"},
	"dribbble":      {"behance", "codepen"},
	"flickr":        {"deviantart", "behance"},
	"deviantart":    {"flickr", "tumblr"},
	"patreon":       {"kofi", "buymeacoffee", "gumroad"},
	"kofi":          {"patreon", "buymeacoffee"},
	"buymeacoffee":  {"patreon", "kofi"},
	"gumroad":       {"patreon", "substack"},
}

// ConnectionsAmong filters the affinity table down to platforms that were
// actually found: for each found platform with at least one found affine
// platform, the returned map holds the intersection.
func (c *Catalog) ConnectionsAmong(found []string) map[string][]string {
	present := make(map[string]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}

	out := make(map[string][]string)
	for _, id := range found {
		affine, ok := affinityTable[id]
		if !ok {
			continue
		}
		var hits []string
		for _, other := range affine {
			if _, ok := present[other]; ok {
				hits = append(hits, other)
			}
		}
		if len(hits) > 0 {
			out[id] = hits
		}
	}
	return out
}

// MonetizationSet returns the ids of platforms flagged as monetization
// channels, in catalog order.
func (c *Catalog) MonetizationSet() []string {
	var out []string
	for _, p := range c.platforms {
		if p.Monetization {
			out = append(out, p.ID)
		}
	}
	return out
}
