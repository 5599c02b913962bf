package host

import (
	"net/url"
	"sort"
)

// SelectExtension picks the installed extension whose manifest's base_urls
// match targetURL's host, breaking ties by ascending source priority then
// by manifest name. Reports false if nothing matches.
func SelectExtension(candidates []RoutableExtension, targetURL string) (RoutableExtension, bool) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return RoutableExtension{}, false
	}
	host := parsed.Host
	if host == "" {
		host = targetURL
	}

	var matches []RoutableExtension
	for _, c := range candidates {
		if c.Manifest.MatchesHost(host) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return RoutableExtension{}, false
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority < matches[j].Priority
		}
		return matches[i].Manifest.Name < matches[j].Manifest.Name
	})
	return matches[0], true
}
