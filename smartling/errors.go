package smartling

import (
	"fmt"
	"net/http"
)

// AuthError is returned when a request is rejected with 401 again after a
// fresh token was obtained, or when authentication itself is rejected.
type AuthError struct {
	URL  string
	Body string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("smartling rejected credentials for %s: %s", e.URL, e.Body)
}

// RateLimitError is returned once the rate-limit retries are spent.
type RateLimitError struct {
	Lang     string
	Attempts int
	Err      error
}

func (e *RateLimitError) Error() string {
	lang := e.Lang
	if lang == "" {
		lang = "all languages"
	}
	return fmt.Sprintf("smartling rate limit retry attempts exceeded for %s after %d attempts", lang, e.Attempts)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// JobFailedError is returned when an asynchronous job reaches FAILED. Payload
// is the raw status data returned by the provider.
type JobFailedError struct {
	Kind    string
	UID     string
	Payload string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("smartling %s %s failed: %s", e.Kind, e.UID, e.Payload)
}

// StatusError is any other non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("smartling %s %s returned status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// rateLimited marks a 429 response inside the retry loop.
type rateLimited struct {
	status *StatusError
}

func (e *rateLimited) Error() string { return e.status.Error() }
func (e *rateLimited) Unwrap() error { return e.status }

func statusError(req *http.Request, code int, body []byte) *StatusError {
	return &StatusError{Method: req.Method, URL: req.URL.String(), Code: code, Body: truncate(string(body), 500)}
}

// truncate truncates a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
