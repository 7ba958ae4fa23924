package storage

import (
	"context"
	"fmt"
	"os"
	"path"
)

// DiskBackend implements ObjectStore using the local filesystem.
// It uses os.Root for sandboxed file operations, preventing path traversal attacks.
type DiskBackend struct {
	root     *os.Root
	basePath string
}

// NewDiskBackend creates a new disk-based storage backend.
// The basePath directory will be created if it doesn't exist.
// All file operations are sandboxed to this directory using os.Root.
func NewDiskBackend(basePath string) (*DiskBackend, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage root: %w", err)
	}

	return &DiskBackend{
		root:     root,
		basePath: basePath,
	}, nil
}

// Put writes content at p, creating intermediate directories.
// The file is written under a temporary name and renamed into place so a
// concurrent Get never sees a partial chunk.
func (d *DiskBackend) Put(ctx context.Context, p string, content []byte, message string) (PutResult, error) {
	p, err := cleanObjectPath(p)
	if err != nil {
		return PutResult{}, err
	}

	if dir := path.Dir(p); dir != "." {
		if err := d.root.MkdirAll(dir, 0755); err != nil {
			return PutResult{}, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp := p + ".partial"
	if err := d.root.WriteFile(tmp, content, 0644); err != nil {
		d.root.Remove(tmp)
		return PutResult{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := d.root.Rename(tmp, p); err != nil {
		d.root.Remove(tmp)
		return PutResult{}, fmt.Errorf("failed to commit file: %w", err)
	}

	return PutResult{Path: p, Size: int64(len(content))}, nil
}

// Get returns the content stored at p.
func (d *DiskBackend) Get(ctx context.Context, p string) ([]byte, error) {
	p, err := cleanObjectPath(p)
	if err != nil {
		return nil, err
	}

	content, err := d.root.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Delete removes a file. Returns nil if file doesn't exist (idempotent).
func (d *DiskBackend) Delete(ctx context.Context, p string, message string) error {
	p, err := cleanObjectPath(p)
	if err != nil {
		return err
	}

	if err := d.root.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// HealthCheck verifies the backend is reachable (cheap, safe for frequent polling).
func (d *DiskBackend) HealthCheck(ctx context.Context) error {
	if _, err := d.root.Stat("."); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}

// Close releases resources held by the backend.
func (d *DiskBackend) Close() error {
	return d.root.Close()
}
