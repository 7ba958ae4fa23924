package storage

import (
	"context"
	"fmt"

	"github.com/agjmills/gallery/internal/config"
)

// NewBackendFromConfig creates the raw ObjectStore selected by the configuration.
// Supported backends:
//   - "github": repository contents API (the production store)
//   - "s3": AWS S3 or compatible storage
//   - "minio": MinIO through its native client
//   - "disk": Local filesystem storage (default)
//   - "memory": In-memory storage for testing
func NewBackendFromConfig(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case "disk", "":
		return NewDiskBackend(cfg.StoragePath)
	case "memory":
		return NewMemoryBackend(), nil
	case "github":
		return NewGitHubBackend(GitHubConfig{
			Token:      cfg.GitHubToken,
			Owner:      cfg.GitHubOwner,
			Repo:       cfg.GitHubRepo,
			Branch:     cfg.GitHubBranch,
			APIURL:     cfg.GitHubAPIURL,
			RawBaseURL: cfg.GitHubRawBaseURL,
		})
	case "s3":
		return NewS3Backend(S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	case "minio":
		return NewMinioBackend(ctx, MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			Bucket:    cfg.MinioBucket,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: github, s3, minio, disk, memory)", cfg.StorageBackend)
	}
}

// NewFromConfig builds the store the application uses: the configured backend
// behind the object size ceiling, an optional circuit breaker and metrics.
func NewFromConfig(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	backend, err := NewBackendFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(backend, cfg), nil
}

// Wrap applies the standard decorators to an existing backend.
func Wrap(backend ObjectStore, cfg *config.Config) ObjectStore {
	var store ObjectStore = WithObjectLimit(backend, cfg.MaxObjectSize)
	if cfg.StoreBreakerEnabled {
		store = NewBreakerStore(store, BreakerSettings{
			ConsecutiveFailures: uint32(cfg.StoreBreakerFailures),
			Timeout:             cfg.StoreBreakerTimeout,
		})
	}
	return Instrument(store)
}
