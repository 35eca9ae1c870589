package translate

import (
	"net/url"
	"strings"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/feed"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/index"
)

// LocalizeURL returns the link variant for lang. A URL that already names a
// locale is returned unchanged; otherwise locale=<lang> is appended to the
// query string, ahead of any fragment.
func LocalizeURL(english, lang string) string {
	if hasLocale(english) {
		return english
	}
	base, fragment, hasFragment := strings.Cut(english, "#")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	out := base + sep + "locale=" + url.QueryEscape(lang)
	if hasFragment {
		out += "#" + fragment
	}
	return out
}

func hasLocale(raw string) bool {
	_, query, ok := strings.Cut(raw, "?")
	if !ok {
		return false
	}
	query, _, _ = strings.Cut(query, "#")
	for _, pair := range strings.Split(query, "&") {
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil && k == "locale" {
			return true
		}
	}
	return false
}

// LocalizeURLs adds a localized link for every target language the url
// field of each alert lacks. Alerts without an English URL are skipped.
func LocalizeURLs(doc *feed.Document, langs []string) {
	for _, f := range index.URLFields(doc) {
		f.Canonicalize()
		english, ok := f.English()
		if !ok || english == "" {
			continue
		}
		for _, lang := range langs {
			if !f.Has(lang) {
				f.Add(lang, LocalizeURL(english, lang))
			}
		}
	}
}
