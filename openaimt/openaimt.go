// Package openaimt translates alert text with an OpenAI-compatible chat
// completions endpoint.
package openaimt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/backoff"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/langmeta"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/translate"
)

// Name is the provider name used in configuration.
const Name = "openai"

// DefaultModel is used when Config.Model is empty.
const DefaultModel = openai.GPT4oMini

const systemPrompt = `You translate public transit service alerts from English.
Reply with a JSON object {"translations": [...]} holding exactly one translated
string per input string, in the same order. Keep station names, route names,
URLs, times and numbers unchanged. Do not add explanations.`

// Config configures a Translator.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API root, e.g. for a compatible gateway.
	BaseURL string
	// Concurrency bounds the per-language requests in flight. Default: 20.
	Concurrency int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Retry       *backoff.Policy
	OnLog       func(format string, args ...any)
}

// Translator implements translate.Translator with one chat completion per
// target language.
type Translator struct {
	cfg    Config
	client *openai.Client
	retry  backoff.Policy
}

var _ translate.Translator = (*Translator)(nil)

// New creates a Translator. An API key is required.
func New(cfg Config) (*Translator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not found")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	retry := backoff.Default()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Translator{cfg: cfg, client: openai.NewClientWithConfig(oc), retry: retry}, nil
}

func (t *Translator) log(format string, args ...any) {
	if t.cfg.OnLog != nil {
		t.cfg.OnLog(format, args...)
	}
}

func (t *Translator) TranslateBatch(ctx context.Context, texts []string, langs []string) (map[string][]*string, error) {
	if len(texts) == 0 {
		out := make(map[string][]*string, len(langs))
		for _, lang := range langs {
			out[lang] = []*string{}
		}
		return out, nil
	}
	return translate.ForEachLanguage(ctx, langs, t.cfg.Concurrency, func(ctx context.Context, lang string) ([]*string, error) {
		return t.translateOne(ctx, texts, lang)
	})
}

type completion struct {
	Translations []string `json:"translations"`
}

func (t *Translator) translateOne(ctx context.Context, texts []string, lang string) ([]*string, error) {
	input, err := json.Marshal(texts)
	if err != nil {
		return nil, err
	}
	req := openai.ChatCompletionRequest{
		Model: t.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Target language: %s\n\n%s", langmeta.Label(lang), input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	}

	policy := t.retry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		t.log("OpenAI rate limited (429) for %s, backing off %.2fs (attempt %d/%d)", lang, wait.Seconds(), attempt, policy.Attempts)
	}

	var resp openai.ChatCompletionResponse
	err = policy.Do(ctx, isRateLimited, func() error {
		var err error
		resp, err = t.client.CreateChatCompletion(ctx, req)
		return err
	})
	if errors.Is(err, backoff.ErrExhausted) {
		return nil, fmt.Errorf("openai rate limit for %s: %w", lang, err)
	}
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error for %s: %w", lang, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no translation returned for %s", lang)
	}

	var out completion
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("parsing %s completion: %w", lang, err)
	}
	if len(out.Translations) != len(texts) {
		return nil, fmt.Errorf("%s completion returned %d strings for %d inputs", lang, len(out.Translations), len(texts))
	}
	list := make([]*string, len(texts))
	for i, s := range out.Translations {
		if strings.TrimSpace(s) == "" {
			continue
		}
		s := s
		list[i] = &s
	}
	return list, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
