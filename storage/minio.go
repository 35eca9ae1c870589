package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOOptions configures NewMinIO. Empty keys fall back to the AWS
// environment, the shared credentials file and the instance role.
type MinIOOptions struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseTLS    bool
}

// MinIO is an ObjectStore backed by an S3-compatible service.
type MinIO struct {
	mc *minio.Client
}

func NewMinIO(opts MinIOOptions) (*MinIO, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	var creds *credentials.Credentials
	if opts.AccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.UseTLS,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client for %s: %w", endpoint, err)
	}
	return &MinIO{mc: mc}, nil
}

func (m *MinIO) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError(err)
	}
	return data, nil
}

func (m *MinIO) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := m.mc.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// translateError maps a missing key to ErrNotFound.
func translateError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Message)
	}
	return err
}

// Memory is an in-process ObjectStore.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject
	puts    int
}

type memObject struct {
	data        []byte
	contentType string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

func (m *Memory) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return bytes.Clone(obj.data), nil
}

func (m *Memory) PutObject(_ context.Context, bucket, key string, data []byte, contentType string) error {
	if bucket == "" {
		return errors.New("empty bucket")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = memObject{data: bytes.Clone(data), contentType: contentType}
	m.puts++
	return nil
}

// ContentType returns the content type an object was stored with.
func (m *Memory) ContentType(bucket, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[bucket+"/"+key].contentType
}

// Puts returns the number of PutObject calls.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
