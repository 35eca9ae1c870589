// Package storage reads and writes feed documents at s3://, http(s):// and
// local file locations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound reports a missing object or file.
var ErrNotFound = errors.New("object not found")

// FetchError is a failed read of a location.
type FetchError struct {
	Location string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: HTTP %d", e.Location, e.Status)
	}
	return fmt.Sprintf("fetching %s: %v", e.Location, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Kind is the scheme family of a Location.
type Kind int

const (
	KindFile Kind = iota
	KindS3
	KindHTTP
)

// Location is a parsed feed location.
type Location struct {
	Raw    string
	Kind   Kind
	Bucket string
	Key    string
}

// ParseLocation accepts s3://bucket/key, http(s) URLs and local paths
// (optionally as file:// URLs).
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}
	switch {
	case strings.HasPrefix(raw, "s3://"):
		path := strings.TrimPrefix(raw, "s3://")
		bucket, key, ok := strings.Cut(path, "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("invalid S3 URL: %s", raw)
		}
		return Location{Raw: raw, Kind: KindS3, Bucket: bucket, Key: key}, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return Location{}, fmt.Errorf("invalid URL: %s", raw)
		}
		return Location{Raw: raw, Kind: KindHTTP}, nil
	case strings.HasPrefix(raw, "file://"):
		return Location{Raw: raw, Kind: KindFile, Key: strings.TrimPrefix(raw, "file://")}, nil
	case strings.Contains(raw, "://"):
		return Location{}, fmt.Errorf("unsupported location scheme: %s", raw)
	}
	return Location{Raw: raw, Kind: KindFile, Key: raw}, nil
}

func (l Location) String() string { return l.Raw }

// ObjectStore is the subset of an S3 client used by Store.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Store dispatches reads and writes by location kind.
type Store struct {
	// Objects serves s3:// locations. It may be nil when none are used.
	Objects ObjectStore
	HTTP    *http.Client
}

// New returns a Store with a default HTTP client.
func New(objects ObjectStore, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		Objects: objects,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Read returns the content at loc. Missing objects and files wrap
// ErrNotFound.
func (s *Store) Read(ctx context.Context, loc Location) ([]byte, error) {
	switch loc.Kind {
	case KindS3:
		if s.Objects == nil {
			return nil, fmt.Errorf("no object store configured for %s", loc)
		}
		data, err := s.Objects.GetObject(ctx, loc.Bucket, loc.Key)
		if err != nil {
			return nil, &FetchError{Location: loc.Raw, Err: err}
		}
		return data, nil
	case KindHTTP:
		return s.get(ctx, loc)
	default:
		data, err := os.ReadFile(loc.Key)
		if errors.Is(err, os.ErrNotExist) {
			return nil, &FetchError{Location: loc.Raw, Err: ErrNotFound}
		}
		if err != nil {
			return nil, &FetchError{Location: loc.Raw, Err: err}
		}
		return data, nil
	}
}

func (s *Store) get(ctx context.Context, loc Location) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.Raw, nil)
	if err != nil {
		return nil, &FetchError{Location: loc.Raw, Err: err}
	}
	hc := s.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &FetchError{Location: loc.Raw, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &FetchError{Location: loc.Raw, Status: resp.StatusCode, Err: ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Location: loc.Raw, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Location: loc.Raw, Err: err}
	}
	return data, nil
}

// Write stores data at loc. HTTP locations are read-only.
func (s *Store) Write(ctx context.Context, loc Location, data []byte, contentType string) error {
	switch loc.Kind {
	case KindS3:
		if s.Objects == nil {
			return fmt.Errorf("no object store configured for %s", loc)
		}
		if err := s.Objects.PutObject(ctx, loc.Bucket, loc.Key, data, contentType); err != nil {
			return fmt.Errorf("uploading %s: %w", loc, err)
		}
		return nil
	case KindHTTP:
		return fmt.Errorf("cannot write to %s: HTTP locations are read-only", loc)
	default:
		if dir := filepath.Dir(loc.Key); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(loc.Key, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", loc, err)
		}
		return nil
	}
}
