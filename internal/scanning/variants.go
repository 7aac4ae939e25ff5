package scanning

import "strings"

var (
	variantSeparators = []string{"", ".", "_", "-"}
	variantPrefixes   = []string{"the", "real", "its"}
	variantSuffixes   = []string{"1", "01", "123", "official", "x"}

	leetTable = map[rune]rune{
		'a': '4',
		'e': '3',
		'i': '1',
		'o': '0',
		's': '5',
		't': '7',
	}
)

// ExpandVariants produces plausible alternate handles for a username:
// separator swaps, common prefixes and suffixes, and leetspeak
// substitutions. The original username is always first and the result is
// deduplicated and capped at limit.
func ExpandVariants(username string, limit int) []string {
	if username == "" || limit <= 0 {
		return nil
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	add := func(candidate string) bool {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			return len(out) < limit
		}
		if _, dup := seen[candidate]; dup {
			return len(out) < limit
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
		return len(out) < limit
	}

	if !add(username) {
		return out
	}

	lower := strings.ToLower(username)
	if !add(lower) {
		return out
	}

	for _, alt := range separatorSwaps(username) {
		if !add(alt) {
			return out
		}
	}

	if leet := leetSubstitute(lower); leet != lower {
		if !add(leet) {
			return out
		}
	}

	for _, suffix := range variantSuffixes {
		if !add(username + suffix) {
			return out
		}
		for _, sep := range variantSeparators[1:] {
			if !add(username + sep + suffix) {
				return out
			}
		}
	}

	for _, prefix := range variantPrefixes {
		if !add(prefix + username) {
			return out
		}
		for _, sep := range variantSeparators[1:] {
			if !add(prefix + sep + username) {
				return out
			}
		}
	}

	return out
}

// separatorSwaps rewrites every separator already present in the username
// with each alternative, so "john.smith" also yields "john_smith",
// "john-smith", and "johnsmith".
func separatorSwaps(username string) []string {
	if !strings.ContainsAny(username, "._-") {
		return nil
	}

	normalize := func(sep string) string {
		s := username
		for _, old := range []string{".", "_", "-"} {
			s = strings.ReplaceAll(s, old, sep)
		}
		return s
	}

	out := make([]string, 0, len(variantSeparators))
	for _, sep := range variantSeparators {
		out = append(out, normalize(sep))
	}
	return out
}

func leetSubstitute(username string) string {
	return strings.Map(func(r rune) rune {
		if sub, ok := leetTable[r]; ok {
			return sub
		}
		return r
	}, username)
}
