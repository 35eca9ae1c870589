package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/feed"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/index"
)

// Metrics summarizes one synchronization run.
type Metrics struct {
	AlertsProcessed    int `json:"alerts_processed" yaml:"alerts_processed"`
	StringsTranslated  int `json:"strings_translated" yaml:"strings_translated"`
	TranslationsReused int `json:"translations_reused" yaml:"translations_reused"`
}

func (m Metrics) String() string {
	return fmt.Sprintf("alerts_processed=%d strings_translated=%d translations_reused=%d",
		m.AlertsProcessed, m.StringsTranslated, m.TranslationsReused)
}

// Sync adds target-language translations to newDoc in place.
//
// Translations found in oldDoc (the previously published feed, nil on a
// first run) are reused by exact English text. Strings still lacking a
// target language are sent to opts.Translator in a single call. Entries a
// field already carries are never overwritten. Any provider error fails the
// whole run and leaves newDoc without provider output.
func Sync(ctx context.Context, newDoc, oldDoc *feed.Document, opts Options) (Metrics, error) {
	langs := opts.effectiveLanguages()
	metrics := Metrics{AlertsProcessed: newDoc.AlertCount()}

	oldMap := index.ExtractTranslations(oldDoc)
	english := index.ExtractEnglish(newDoc)

	merged := make(index.Map, len(english))
	for _, text := range english {
		entry := make(map[string]string)
		for lang, tr := range oldMap[text] {
			entry[lang] = tr
		}
		merged[text] = entry
		for _, lang := range langs {
			if _, ok := entry[lang]; ok {
				metrics.TranslationsReused++
			}
		}
	}

	var missing, nonBlank []string
	for _, text := range english {
		if isBlank(text) {
			continue
		}
		nonBlank = append(nonBlank, text)
		for _, lang := range langs {
			if _, ok := merged[text][lang]; !ok {
				missing = append(missing, text)
				break
			}
		}
	}

	request := missing
	if len(missing) > 0 && opts.effectivePolicy() == PolicyAll {
		request = nonBlank
	}

	if len(request) > 0 {
		if opts.Translator == nil {
			return metrics, fmt.Errorf("%d strings need translation but no translator is configured", len(request))
		}
		opts.log("Requesting %d of %d strings in %d languages (%d missing)", len(request), len(english), len(langs), len(missing))

		results, err := opts.Translator.TranslateBatch(ctx, request, langs)
		if err != nil {
			return metrics, fmt.Errorf("translating %d strings: %w", len(request), err)
		}
		for _, lang := range langs {
			list, ok := results[lang]
			if !ok {
				continue
			}
			if len(list) != len(request) {
				return metrics, fmt.Errorf("translator returned %d results for %d texts in %s", len(list), len(request), lang)
			}
			for i, tr := range list {
				if tr == nil || isEcho(request[i], *tr) {
					continue
				}
				merged[request[i]][lang] = *tr
				metrics.StringsTranslated++
			}
		}
	}

	for text, entry := range merged {
		if isBlank(text) {
			for _, lang := range langs {
				entry[lang] = ""
			}
		}
	}

	for _, f := range index.Fields(newDoc) {
		apply(f, merged, langs)
	}
	LocalizeURLs(newDoc, langs)

	opts.log("Synchronized: %s", metrics)
	return metrics, nil
}

// apply adds every language the field lacks and merged knows, except
// values that only repeat the English text.
func apply(f index.Field, merged index.Map, langs []string) {
	f.Canonicalize()
	text, ok := f.English()
	if !ok {
		return
	}
	for _, lang := range langs {
		if f.Has(lang) {
			continue
		}
		if tr, ok := merged[text][lang]; ok && !isEcho(text, tr) {
			f.Add(lang, tr)
		}
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// isEcho reports a translation identical to non-blank English text.
func isEcho(english, tr string) bool {
	return tr == english && !isBlank(english)
}
