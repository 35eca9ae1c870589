package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw    string
		kind   Kind
		bucket string
		key    string
		err    bool
	}{
		{raw: "s3://bucket/alerts/Alerts.pb", kind: KindS3, bucket: "bucket", key: "alerts/Alerts.pb"},
		{raw: "s3://bucket", err: true},
		{raw: "s3://bucket/", err: true},
		{raw: "https://cdn.mbta.com/realtime/Alerts_enhanced.json", kind: KindHTTP},
		{raw: "http://", err: true},
		{raw: "file:///tmp/feed.pb", kind: KindFile, key: "/tmp/feed.pb"},
		{raw: "testdata/feed.json", kind: KindFile, key: "testdata/feed.json"},
		{raw: "gs://bucket/key", err: true},
		{raw: "  ", err: true},
	}
	for _, tt := range tests {
		got, err := ParseLocation(tt.raw)
		if tt.err {
			if err == nil {
				t.Fatalf("ParseLocation(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseLocation(%q) error: %v", tt.raw, err)
		}
		if got.Kind != tt.kind || got.Bucket != tt.bucket || got.Key != tt.key {
			t.Fatalf("ParseLocation(%q) = %+v", tt.raw, got)
		}
	}
}

func TestReadHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.pb":
			_, _ = w.Write([]byte("feed"))
		case "/missing.pb":
			http.NotFound(w, r)
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	s := New(nil, 0)
	ctx := context.Background()

	loc, _ := ParseLocation(srv.URL + "/feed.pb")
	data, err := s.Read(ctx, loc)
	if err != nil || string(data) != "feed" {
		t.Fatalf("Read() = %q, %v", data, err)
	}

	loc, _ = ParseLocation(srv.URL + "/missing.pb")
	if _, err := s.Read(ctx, loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(missing) error = %v, want ErrNotFound", err)
	}

	loc, _ = ParseLocation(srv.URL + "/broken.pb")
	_, err = s.Read(ctx, loc)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusBadGateway {
		t.Fatalf("Read(broken) error = %v, want FetchError 502", err)
	}

	if err := s.Write(ctx, loc, []byte("x"), "text/plain"); err == nil {
		t.Fatal("Write() to HTTP should fail")
	}
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	s := New(nil, 0)
	ctx := context.Background()

	loc, _ := ParseLocation(filepath.Join(dir, "out", "Alerts.json"))
	if _, err := s.Read(ctx, loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Write(ctx, loc, []byte("{}"), "application/json"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	data, err := os.ReadFile(loc.Key)
	if err != nil || string(data) != "{}" {
		t.Fatalf("file = %q, %v", data, err)
	}
}

func TestReadWriteObjects(t *testing.T) {
	mem := NewMemory()
	s := New(mem, 0)
	ctx := context.Background()
	loc, _ := ParseLocation("s3://bucket/alerts/Alerts.json")

	if _, err := s.Read(ctx, loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Write(ctx, loc, []byte("{}"), "application/json"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	data, err := s.Read(ctx, loc)
	if err != nil || string(data) != "{}" {
		t.Fatalf("Read() = %q, %v", data, err)
	}
	if ct := mem.ContentType("bucket", "alerts/Alerts.json"); ct != "application/json" {
		t.Fatalf("ContentType() = %q", ct)
	}
	if mem.Puts() != 1 {
		t.Fatalf("Puts() = %d, want 1", mem.Puts())
	}

	if _, err := New(nil, 0).Read(ctx, loc); err == nil {
		t.Fatal("Read() without object store should fail")
	}
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		err      error
		notFound bool
	}{
		{err: minio.ErrorResponse{Code: "NoSuchKey", Message: "gone"}, notFound: true},
		{err: minio.ErrorResponse{Code: "", StatusCode: http.StatusNotFound}, notFound: true},
		{err: minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}},
		{err: fmt.Errorf("network down")},
	}
	for _, tt := range tests {
		if got := errors.Is(translateError(tt.err), ErrNotFound); got != tt.notFound {
			t.Fatalf("translateError(%v) not found = %v, want %v", tt.err, got, tt.notFound)
		}
	}
}

func TestNewMinIO(t *testing.T) {
	if _, err := NewMinIO(MinIOOptions{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}); err != nil {
		t.Fatalf("NewMinIO() error: %v", err)
	}
	if _, err := NewMinIO(MinIOOptions{}); err != nil {
		t.Fatalf("NewMinIO(default) error: %v", err)
	}
}
