// Package index walks the translatable strings of a feed document, both
// the structured alert fields and the enhanced fields that exist only in
// the JSON overlay, and builds the content-addressed translation map used
// to reuse previously published translations.
package index

import (
	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/feed"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/langmeta"
)

// EnhancedFields are the overlay-only alert fields carrying translations.
var EnhancedFields = []string{"service_effect_text", "timeframe_text"}

// Map is English text -> canonical language tag -> translated text.
type Map map[string]map[string]string

// Field is one translated string of a feed, backed either by the
// structured message or by the JSON overlay. Mutations write through to
// the backing document.
type Field interface {
	// English returns the source text; ok is false when the field has no
	// entry tagged "en" or untagged.
	English() (text string, ok bool)
	// Translations returns every non-English (language, text) pair in order.
	Translations() []Translation
	// Has reports whether an entry with exactly this tag exists.
	Has(lang string) bool
	// Add appends an entry.
	Add(lang, text string)
	// Canonicalize rewrites legacy tags to canonical ones, dropping the
	// legacy entry when the canonical tag is already present.
	Canonicalize()
}

// Translation is one non-English entry of a Field.
type Translation struct {
	Language string
	Text     string
}

// Fields returns the prose fields of every alert in doc: header_text,
// description_text, tts_header_text, tts_description_text and, when the
// document has an overlay, the enhanced fields.
func Fields(doc *feed.Document) []Field {
	if doc == nil || doc.Message == nil {
		return nil
	}
	var out []Field
	for _, e := range doc.Message.GetEntity() {
		a := e.GetAlert()
		if a == nil {
			continue
		}
		for _, ts := range []*gtfs.TranslatedString{a.HeaderText, a.DescriptionText, a.TtsHeaderText, a.TtsDescriptionText} {
			if ts != nil {
				out = append(out, &protoField{ts: ts})
			}
		}
	}
	return append(out, overlayFields(doc.Overlay)...)
}

// URLFields returns the url field of every alert in doc.
func URLFields(doc *feed.Document) []Field {
	if doc == nil || doc.Message == nil {
		return nil
	}
	var out []Field
	for _, e := range doc.Message.GetEntity() {
		if ts := e.GetAlert().GetUrl(); ts != nil {
			out = append(out, &protoField{ts: ts})
		}
	}
	return out
}

func overlayFields(tree map[string]any) []Field {
	if tree == nil {
		return nil
	}
	var out []Field
	for _, e := range feed.Entities(tree) {
		alert, ok := e["alert"].(map[string]any)
		if !ok {
			continue
		}
		for _, name := range EnhancedFields {
			if m, ok := alert[name].(map[string]any); ok {
				out = append(out, &jsonField{m: m})
			}
		}
	}
	return out
}

// ExtractEnglish returns the distinct English texts of doc in first-seen
// order. Fields without an English entry are skipped.
func ExtractEnglish(doc *feed.Document) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range Fields(doc) {
		text, ok := f.English()
		if !ok || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}
	return out
}

// ExtractTranslations collects, for every English text of doc, the
// non-English entries found next to it, keyed by canonical tag. When the
// same text carries different translations in different places the first
// one encountered wins.
func ExtractTranslations(doc *feed.Document) Map {
	m := make(Map)
	for _, f := range Fields(doc) {
		text, ok := f.English()
		if !ok {
			continue
		}
		langs := m[text]
		if langs == nil {
			langs = make(map[string]string)
			m[text] = langs
		}
		for _, t := range f.Translations() {
			lang := langmeta.Canonical(t.Language)
			if _, exists := langs[lang]; !exists {
				langs[lang] = t.Text
			}
		}
	}
	return m
}

// ---------------------------------------------------------------------------
// Structured fields
// ---------------------------------------------------------------------------

type protoField struct {
	ts *gtfs.TranslatedString
}

func (f *protoField) English() (string, bool) {
	for _, t := range f.ts.GetTranslation() {
		if langmeta.IsEnglish(t.GetLanguage()) {
			return t.GetText(), true
		}
	}
	return "", false
}

func (f *protoField) Translations() []Translation {
	var out []Translation
	for _, t := range f.ts.GetTranslation() {
		if !langmeta.IsEnglish(t.GetLanguage()) {
			out = append(out, Translation{Language: t.GetLanguage(), Text: t.GetText()})
		}
	}
	return out
}

func (f *protoField) Has(lang string) bool {
	for _, t := range f.ts.GetTranslation() {
		if t.GetLanguage() == lang {
			return true
		}
	}
	return false
}

func (f *protoField) Add(lang, text string) {
	f.ts.Translation = append(f.ts.Translation, &gtfs.TranslatedString_Translation{
		Text:     proto.String(text),
		Language: proto.String(lang),
	})
}

func (f *protoField) Canonicalize() {
	present := make(map[string]bool, len(f.ts.Translation))
	for _, t := range f.ts.Translation {
		present[t.GetLanguage()] = true
	}
	kept := make([]*gtfs.TranslatedString_Translation, 0, len(f.ts.Translation))
	for _, t := range f.ts.Translation {
		if lang := t.GetLanguage(); langmeta.IsLegacy(lang) {
			canonical := langmeta.Canonical(lang)
			if present[canonical] {
				continue
			}
			t.Language = proto.String(canonical)
		}
		kept = append(kept, t)
	}
	f.ts.Translation = kept
}

// ---------------------------------------------------------------------------
// Overlay fields: {"translation": [{"text": ..., "language": ...}]}
// ---------------------------------------------------------------------------

type jsonField struct {
	m map[string]any
}

func (f *jsonField) entries() []map[string]any {
	list, _ := f.m["translation"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if e, ok := item.(map[string]any); ok {
			out = append(out, e)
		}
	}
	return out
}

func str(e map[string]any, key string) string {
	s, _ := e[key].(string)
	return s
}

func (f *jsonField) English() (string, bool) {
	for _, e := range f.entries() {
		if langmeta.IsEnglish(str(e, "language")) {
			return str(e, "text"), true
		}
	}
	return "", false
}

func (f *jsonField) Translations() []Translation {
	var out []Translation
	for _, e := range f.entries() {
		if lang := str(e, "language"); !langmeta.IsEnglish(lang) {
			out = append(out, Translation{Language: lang, Text: str(e, "text")})
		}
	}
	return out
}

func (f *jsonField) Has(lang string) bool {
	for _, e := range f.entries() {
		if str(e, "language") == lang {
			return true
		}
	}
	return false
}

func (f *jsonField) Add(lang, text string) {
	list, _ := f.m["translation"].([]any)
	f.m["translation"] = append(list, map[string]any{"text": text, "language": lang})
}

func (f *jsonField) Canonicalize() {
	list, ok := f.m["translation"].([]any)
	if !ok {
		return
	}
	present := make(map[string]bool, len(list))
	for _, e := range f.entries() {
		present[str(e, "language")] = true
	}
	kept := make([]any, 0, len(list))
	for _, item := range list {
		if e, ok := item.(map[string]any); ok {
			if lang := str(e, "language"); langmeta.IsLegacy(lang) {
				canonical := langmeta.Canonical(lang)
				if present[canonical] {
					continue
				}
				e["language"] = canonical
			}
		}
		kept = append(kept, item)
	}
	f.m["translation"] = kept
}
