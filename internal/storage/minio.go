package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds configuration for the MinIO storage backend.
type MinioConfig struct {
	Endpoint  string // host:port, or a full http(s):// URL
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MinioBackend implements ObjectStore on a MinIO server using the native client.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend connects to MinIO and creates the bucket if it is missing.
func NewMinioBackend(ctx context.Context, cfg MinioConfig) (*MinioBackend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("MinIO bucket name is required")
	}

	endpoint := cfg.Endpoint
	// Accept a full URL as endpoint and derive TLS from its scheme.
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			cfg.UseSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioBackend{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads content under key p. The write message is kept as user metadata.
func (m *MinioBackend) Put(ctx context.Context, p string, content []byte, message string) (PutResult, error) {
	p, err := cleanObjectPath(p)
	if err != nil {
		return PutResult{}, err
	}

	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if message != "" {
		opts.UserMetadata = map[string]string{"message": message}
	}

	info, err := m.client.PutObject(ctx, m.bucket, p, bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		return PutResult{}, fmt.Errorf("failed to upload to minio: %w", err)
	}

	return PutResult{Path: p, Size: info.Size}, nil
}

// Get downloads the object at key p.
func (m *MinioBackend) Get(ctx context.Context, p string) ([]byte, error) {
	p, err := cleanObjectPath(p)
	if err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, m.bucket, p, minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object from minio: %w", err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	content, err := io.ReadAll(obj)
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object from minio: %w", err)
	}
	return content, nil
}

// Delete removes an object. RemoveObject already succeeds for missing keys.
func (m *MinioBackend) Delete(ctx context.Context, p string, message string) error {
	p, err := cleanObjectPath(p)
	if err != nil {
		return err
	}

	if err := m.client.RemoveObject(ctx, m.bucket, p, minio.RemoveObjectOptions{}); err != nil && !isMinioNotFound(err) {
		return fmt.Errorf("failed to delete object from minio: %w", err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (m *MinioBackend) HealthCheck(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("minio health check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("minio health check failed: bucket %s missing", m.bucket)
	}
	return nil
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
