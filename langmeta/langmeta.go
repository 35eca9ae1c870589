// Package langmeta holds the language tag rules shared by the feed index,
// the provider clients and the CLI: canonicalization of provider-specific
// tags into the tags published in the feed, the inverse mapping used only
// when talking to a provider, and display names for log output.
package langmeta

import "strings"

// English is the tag of the source language. An empty tag is treated the
// same way by IsEnglish.
const English = "en"

// Meta describes language display metadata.
type Meta struct {
	Name string
}

// Registry contains display metadata for the languages riders are served in.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"ar":     {Name: "العربية"},
	"de":     {Name: "Deutsch"},
	"en":     {Name: "English"},
	"es":     {Name: "Español"},
	"es-419": {Name: "Español (Latinoamérica)"},
	"es-MX":  {Name: "Español (México)"},
	"fr":     {Name: "Français"},
	"ht":     {Name: "Kreyòl ayisyen"},
	"it":     {Name: "Italiano"},
	"ja":     {Name: "日本語"},
	"km":     {Name: "ខ្មែរ"},
	"ko":     {Name: "한국어"},
	"pl":     {Name: "Polski"},
	"pt":     {Name: "Português"},
	"pt-BR":  {Name: "Português (Brasil)"},
	"ru":     {Name: "Русский"},
	"vi":     {Name: "Tiếng Việt"},
	"zh":     {Name: "中文"},
	"zh-CN":  {Name: "简体中文"},
	"zh-TW":  {Name: "繁體中文"},
}

// providerTags maps canonical tags to the codes the translation provider
// expects. Only tags that differ are listed.
var providerTags = map[string]string{
	"es-419": "es-LA",
}

// canonicalTags is the inverse of providerTags.
var canonicalTags = func() map[string]string {
	m := make(map[string]string, len(providerTags))
	for canonical, provider := range providerTags {
		m[provider] = canonical
	}
	return m
}()

// IsEnglish reports whether a translation entry with this tag holds the
// source text.
func IsEnglish(lang string) bool {
	return lang == "" || lang == English
}

// Canonical maps a provider or legacy tag to the tag used in published
// feeds. Unknown tags pass through unchanged.
func Canonical(lang string) string {
	if c, ok := canonicalTags[lang]; ok {
		return c
	}
	return lang
}

// ToProvider maps a canonical tag to the code sent to the provider.
// Unknown tags pass through unchanged.
func ToProvider(lang string) string {
	if p, ok := providerTags[lang]; ok {
		return p
	}
	return lang
}

// IsLegacy reports whether lang is a provider-only tag that must never
// appear in published output.
func IsLegacy(lang string) bool {
	_, ok := canonicalTags[lang]
	return ok
}

// ParseList splits a comma separated language list, trims each entry,
// canonicalizes it and drops blanks and duplicates while keeping order.
func ParseList(csv string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(csv, ",") {
		lang := Canonical(strings.TrimSpace(part))
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		out = append(out, lang)
	}
	return out
}

func normalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 && len(parts[1]) == 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like pt_BR, pt-BR, provider codes and locale fallbacks.
func Resolve(lang string) Meta {
	if m, ok := Registry[Canonical(lang)]; ok {
		return m
	}
	normalized := Canonical(normalize(lang))
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{Name: lang}
}

// Label formats a tag for log lines, e.g. "es-419 (Español (Latinoamérica))".
func Label(lang string) string {
	m := Resolve(lang)
	if m.Name == lang {
		return lang
	}
	return lang + " (" + m.Name + ")"
}
