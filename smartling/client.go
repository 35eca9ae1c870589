// Package smartling is a client for the Smartling machine-translation APIs.
//
// Three strategies share one Client: Inline calls the synchronous MT router
// once per language, JobBatch runs the job/batch workflow, and
// FileTranslation runs the file-translation workflow. The Client owns the
// access token and applies the same rules to every request: a 401 drops the
// cached token and the request is retried exactly once, and a 429 is retried
// with jittered exponential backoff.
package smartling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/backoff"
)

// DefaultBaseURL is the Smartling API root.
const DefaultBaseURL = "https://api.smartling.com"

// refreshMargin is how long before expiry a cached token is replaced.
const refreshMargin = 60 * time.Second

// Strategy names accepted by New.
const (
	StrategyInline = "smartling-mt"
	StrategyJobs   = "smartling-jobs"
	StrategyFile   = "smartling-file"
)

// Config configures a Client.
type Config struct {
	UserID     string
	UserSecret string
	// AccountUID is required by the Inline and FileTranslation strategies.
	AccountUID string
	// ProjectID is required by the JobBatch strategy.
	ProjectID string
	// JobName is the job name template for JobBatch.
	// Default: "GTFS Alerts Translation".
	JobName string

	BaseURL string
	// Concurrency bounds the per-language requests in flight. Default: 20.
	Concurrency int
	// PollInterval is the status polling interval. Default: 1s.
	PollInterval time.Duration
	// Timeout is the per-request HTTP timeout. Default: 30s.
	Timeout    time.Duration
	HTTPClient *http.Client
	// Retry is the rate-limit policy. Default: backoff.Default().
	Retry *backoff.Policy

	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
}

// Client holds the authentication state shared by all strategies.
type Client struct {
	cfg   Config
	http  *http.Client
	retry backoff.Policy
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	token  string
	expiry time.Time
	auth   singleflight.Group
}

// NewClient creates a Client. No request is made until the first call.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.JobName == "" {
		cfg.JobName = "GTFS Alerts Translation"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = makeHTTPClient(cfg.Timeout)
	}
	retry := backoff.Default()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Client{
		cfg:   cfg,
		http:  hc,
		retry: retry,
		now:   time.Now,
		sleep: backoff.Sleep,
	}
}

func (c *Client) log(format string, args ...any) {
	if c.cfg.OnLog != nil {
		c.cfg.OnLog(format, args...)
	}
}

func makeHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

type authResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// accessToken returns the cached token, authenticating when there is none
// or it expires within refreshMargin. Concurrent callers share a single
// authentication request.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiry.Add(-refreshMargin)) {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	v, err, _ := c.auth.Do("token", func() (any, error) {
		return c.authenticate(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	endpoint := c.cfg.BaseURL + "/auth-api/v2/authenticate"
	body, _ := json.Marshal(map[string]string{
		"userIdentifier": c.cfg.UserID,
		"userSecret":     c.cfg.UserSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticating with smartling: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{URL: endpoint, Body: truncate(string(data), 500)}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimited{status: statusError(req, resp.StatusCode, data)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(req, resp.StatusCode, data)
	}

	var auth authResponse
	if err := decodeData(data, &auth); err != nil {
		return "", fmt.Errorf("parsing auth response: %w", err)
	}
	if auth.AccessToken == "" {
		return "", fmt.Errorf("auth response has no access token")
	}

	c.mu.Lock()
	c.token = auth.AccessToken
	c.expiry = c.now().Add(time.Duration(auth.ExpiresIn) * time.Second)
	c.mu.Unlock()
	c.log("Authenticated with Smartling (token valid %ds)", auth.ExpiresIn)
	return auth.AccessToken, nil
}

// invalidate drops the cached token if it is still tok.
func (c *Client) invalidate(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == tok {
		c.token = ""
		c.expiry = time.Time{}
	}
}

// ---------------------------------------------------------------------------
// Request execution
// ---------------------------------------------------------------------------

// requestFunc builds a fresh request for every attempt so bodies can be
// re-read.
type requestFunc func(ctx context.Context) (*http.Request, error)

// do sends a request with authentication, the single 401 retry and the
// rate-limit backoff. lang names the affected language in errors.
func (c *Client) do(ctx context.Context, lang string, build requestFunc) ([]byte, error) {
	policy := c.retry
	if policy.Sleep == nil {
		policy.Sleep = c.sleep
	}
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		c.log("Smartling rate limited (429) for %s, backing off %.2fs (attempt %d/%d)",
			langLabel(lang), wait.Seconds(), attempt, policy.Attempts)
	}

	var body []byte
	err := policy.Do(ctx, isRateLimited, func() error {
		var err error
		body, err = c.doAuthorized(ctx, build)
		return err
	})
	if errors.Is(err, backoff.ErrExhausted) {
		return nil, &RateLimitError{Lang: lang, Attempts: policy.Attempts, Err: err}
	}
	return body, err
}

// doAuthorized sends one request, retrying exactly once with a fresh token
// after a 401.
func (c *Client) doAuthorized(ctx context.Context, build requestFunc) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		tok, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s response: %w", req.URL.Path, err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			c.invalidate(tok)
			if attempt == 0 {
				continue
			}
			return nil, &AuthError{URL: req.URL.String(), Body: truncate(string(data), 500)}
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &rateLimited{status: statusError(req, resp.StatusCode, data)}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, statusError(req, resp.StatusCode, data)
		}
		return data, nil
	}
}

func isRateLimited(err error) bool {
	var rl *rateLimited
	return errors.As(err, &rl)
}

func langLabel(lang string) string {
	if lang == "" {
		return "all languages"
	}
	return lang
}

// ---------------------------------------------------------------------------
// Request and response helpers
// ---------------------------------------------------------------------------

func (c *Client) endpoint(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(fmt.Sprint(a))
	}
	return c.cfg.BaseURL + fmt.Sprintf(format, escaped...)
}

func jsonRequest(method, endpoint string, payload any) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

// envelope is the standard {"response": {"code": ..., "data": ...}} wrapper.
type envelope struct {
	Response struct {
		Code string          `json:"code"`
		Data json.RawMessage `json:"data"`
	} `json:"response"`
}

func decodeData(body []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if len(env.Response.Data) == 0 || string(env.Response.Data) == "null" {
		return fmt.Errorf("response has no data (code %q)", env.Response.Code)
	}
	return json.Unmarshal(env.Response.Data, v)
}

// decodeList decodes a downloaded translation file: a JSON array aligned
// with the uploaded texts.
func decodeList(body []byte, lang string) ([]*string, error) {
	var list []*string
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("expected JSON list for %s: %w", lang, err)
	}
	return list, nil
}
