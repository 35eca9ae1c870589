// Package translate synchronizes the translations of a GTFS-realtime alert
// feed against the previously published feed and a machine-translation
// provider.
//
// Reuse is content-addressed: every translatable string is keyed by its
// exact English text, so identical text in different alerts shares one
// cache entry and one provider request. Only strings with at least one
// target language missing are sent to the provider (or, under PolicyAll,
// every string once anything is missing).
package translate

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/langmeta"
)

// ---------------------------------------------------------------------------
// Provider contract
// ---------------------------------------------------------------------------

// Translator translates a batch of English texts into several languages.
//
// The result maps each requested language to a slice aligned by position
// with texts. A nil element means no translation was obtained for that text
// and it will be requested again on the next run.
type Translator interface {
	TranslateBatch(ctx context.Context, texts []string, langs []string) (map[string][]*string, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(ctx context.Context, texts []string, langs []string) (map[string][]*string, error)

func (f TranslatorFunc) TranslateBatch(ctx context.Context, texts []string, langs []string) (map[string][]*string, error) {
	return f(ctx, texts, langs)
}

// Mock prefixes every text with its language tag, e.g. "[es] Delays".
type Mock struct{}

func (Mock) TranslateBatch(_ context.Context, texts []string, langs []string) (map[string][]*string, error) {
	out := make(map[string][]*string, len(langs))
	for _, lang := range langs {
		list := make([]*string, len(texts))
		for i, text := range texts {
			s := fmt.Sprintf("[%s] %s", lang, text)
			list[i] = &s
		}
		out[lang] = list
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Request policy
// ---------------------------------------------------------------------------

// Policy decides which strings are sent once a provider call is needed.
type Policy string

const (
	// PolicyMissing sends only strings lacking a target language.
	PolicyMissing Policy = "missing"
	// PolicyAll resends every non-blank string whenever anything is missing.
	PolicyAll Policy = "all"
)

// ParsePolicy validates a policy name. The empty string selects PolicyMissing.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyMissing:
		return PolicyMissing, nil
	case PolicyAll:
		return PolicyAll, nil
	default:
		return "", fmt.Errorf("unknown translate policy %q (valid: missing, all)", s)
	}
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures Sync.
type Options struct {
	// Translator is the provider client. It is only called when a string
	// is missing a target language.
	Translator Translator
	// Languages are the target language tags. Legacy provider tags are
	// canonicalized and duplicates dropped.
	Languages []string
	// Policy selects the request set. Default: PolicyMissing.
	Policy Policy
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveLanguages() []string {
	return langmeta.ParseList(strings.Join(o.Languages, ","))
}

func (o *Options) effectivePolicy() Policy {
	if o.Policy == "" {
		return PolicyMissing
	}
	return o.Policy
}

// ---------------------------------------------------------------------------
// Per-language fan-out shared by provider clients
// ---------------------------------------------------------------------------

// ForEachLanguage runs fn for every language with at most limit calls in
// flight and collects the results by language. The first error cancels the
// remaining calls and is returned; no partial result is returned with it.
func ForEachLanguage(ctx context.Context, langs []string, limit int, fn func(ctx context.Context, lang string) ([]*string, error)) (map[string][]*string, error) {
	if limit <= 0 {
		limit = 1
	}
	results := make([][]*string, len(langs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, lang := range langs {
		g.Go(func() error {
			res, err := fn(gctx, lang)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]*string, len(langs))
	for i, lang := range langs {
		out[lang] = results[i]
	}
	return out, nil
}
