package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/liamg/memoryfs"
)

// MemoryBackend implements ObjectStore using an in-memory filesystem.
// Useful for integration testing without disk or network I/O.
// Thread-safe for concurrent use.
type MemoryBackend struct {
	fs *memoryfs.FS
	mu sync.RWMutex // Protects fs operations
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		fs: memoryfs.New(),
	}
}

// Put stores content at p, replacing any existing object.
func (m *MemoryBackend) Put(ctx context.Context, p string, content []byte, message string) (PutResult, error) {
	p, err := cleanObjectPath(p)
	if err != nil {
		return PutResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dir := path.Dir(p); dir != "." {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return PutResult{}, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := m.fs.WriteFile(p, content, 0o644); err != nil {
		return PutResult{}, fmt.Errorf("failed to write object: %w", err)
	}

	return PutResult{Path: p, Size: int64(len(content))}, nil
}

// Get returns the content stored at p.
func (m *MemoryBackend) Get(ctx context.Context, p string) ([]byte, error) {
	p, err := cleanObjectPath(p)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	content, err := m.fs.ReadFile(p)
	m.mu.RUnlock()
	if err != nil {
		if isNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return content, nil
}

// Delete removes an object. Returns nil if it doesn't exist (idempotent).
func (m *MemoryBackend) Delete(ctx context.Context, p string, message string) error {
	p, err := cleanObjectPath(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	err = m.fs.Remove(p)
	m.mu.Unlock()
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// HealthCheck always succeeds; the memory backend has no external dependencies.
func (m *MemoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// Exists reports whether an object is stored at p.
func (m *MemoryBackend) Exists(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, err := m.fs.Stat(p)
	return err == nil && !info.IsDir()
}

// Clear removes all objects from the memory backend.
// Useful for test cleanup.
func (m *MemoryBackend) Clear() {
	m.mu.Lock()
	m.fs = memoryfs.New()
	m.mu.Unlock()
}

// FileCount returns the number of objects currently stored, at any depth.
func (m *MemoryBackend) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	_ = fs.WalkDir(m.fs, ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}

// isNotExist checks if an error indicates the file doesn't exist.
func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	// memoryfs wraps errors, so check the error message
	errStr := err.Error()
	return strings.Contains(errStr, "file does not exist") ||
		strings.Contains(errStr, "no such file")
}
