package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an object does not exist in the store.
	ErrNotFound = errors.New("object not found")

	// ErrObjectTooLarge is returned when content exceeds the single-object ceiling.
	ErrObjectTooLarge = errors.New("object exceeds maximum allowed size")

	// ErrInvalidPath is returned for empty, absolute or traversing object paths.
	ErrInvalidPath = errors.New("invalid object path")
)

// DefaultMaxObjectSize is the largest object the remote store accepts.
const DefaultMaxObjectSize = 25 * 1024 * 1024

// ObjectStore is a size-capped, path-addressed blob store. Paths are slash
// separated and relative to the store root. Every write carries a message,
// which version-controlled backends record as the commit message.
type ObjectStore interface {
	Put(ctx context.Context, path string, content []byte, message string) (PutResult, error)
	Get(ctx context.Context, path string) ([]byte, error)
	// Delete is idempotent: deleting a missing object succeeds.
	Delete(ctx context.Context, path string, message string) error
	HealthCheck(ctx context.Context) error
}

// PutResult describes a stored object. URL is empty for backends that have no
// publicly reachable address; those objects are served by the application.
type PutResult struct {
	Path string
	URL  string
	Size int64
}

// Layout decides where media objects and chunk sets live inside the store.
type Layout struct {
	MediaFolder string
	ChunkFolder string
}

// DefaultLayout matches the historical repository layout.
var DefaultLayout = Layout{MediaFolder: "Gallery", ChunkFolder: "temp_chunks"}

// MediaPath is the object path of a directly uploaded file.
func (l Layout) MediaPath(filename string) string {
	return path.Join(l.MediaFolder, filename)
}

// ChunkPath is the object path of chunk index of a session:
// {ChunkFolder}/{sessionID}/{sessionID}_chunk_{index:04d}.
func (l Layout) ChunkPath(sessionID string, index int) string {
	return path.Join(l.ChunkFolder, sessionID, chunking.ChunkName(sessionID, index))
}

// cleanObjectPath normalizes an object path and rejects anything that could
// escape the store root.
func cleanObjectPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// ValidateAccess performs a full write/read/delete round trip against the store.
func ValidateAccess(ctx context.Context, store ObjectStore) error {
	testPath := ".gallery-access-test-" + uuid.New().String()
	testContent := []byte("gallery-storage-test")

	if _, err := store.Put(ctx, testPath, testContent, "Access check"); err != nil {
		return fmt.Errorf("storage write test failed: %w", err)
	}

	readContent, err := store.Get(ctx, testPath)
	if err != nil {
		_ = store.Delete(ctx, testPath, "Access check cleanup")
		return fmt.Errorf("storage read test failed: %w", err)
	}
	if !bytes.Equal(readContent, testContent) {
		_ = store.Delete(ctx, testPath, "Access check cleanup")
		return fmt.Errorf("storage read test failed: content mismatch")
	}

	if err := store.Delete(ctx, testPath, "Access check cleanup"); err != nil {
		return fmt.Errorf("storage delete test failed: %w", err)
	}

	return nil
}
