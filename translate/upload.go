package translate

import "github.com/mbta/gtfs-rt-alerts-translation-lambda/feed"

// ShouldUpload reports whether a synchronized feed is worth publishing:
// always on a first run or when the header timestamp changed, otherwise
// only when the provider returned new translations.
func ShouldUpload(oldDoc, newDoc *feed.Document, m Metrics) bool {
	if oldDoc == nil {
		return true
	}
	if oldDoc.Timestamp() != newDoc.Timestamp() {
		return true
	}
	return m.StringsTranslated > 0
}
