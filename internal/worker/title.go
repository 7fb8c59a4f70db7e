package worker

import (
	"net/url"
	"strings"
)

// titleFromURL derives a display title from the source URL: the last path
// segment, de-slugged and title-cased, suffixed with the host. Falls back to
// a generic title when the URL yields nothing usable.
func titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "Generated Podcast"
	}

	domain := strings.TrimPrefix(u.Hostname(), "www.")

	var last string
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			last = part
		}
	}
	if last == "" {
		return "Podcast from " + domain
	}

	base := strings.NewReplacer("-", " ", "_", " ").Replace(last)
	return titleCase(base) + " - " + domain
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
