// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/agjmills/gallery/internal/database"
	"github.com/agjmills/gallery/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrInjected is the failure returned by FailingStore for matching paths.
var ErrInjected = errors.New("injected store failure")

// NewTestDB opens a migrated in-memory SQLite database that lives for the
// duration of the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// FailingStore wraps an ObjectStore and fails operations on paths containing
// any of the configured substrings.
type FailingStore struct {
	storage.ObjectStore

	mu         sync.Mutex
	failGet    []string
	failPut    []string
	failDelete []string
	gets       []string
	deletes    []string
}

// NewFailingStore wraps next. With no failures configured it behaves like next.
func NewFailingStore(next storage.ObjectStore) *FailingStore {
	return &FailingStore{ObjectStore: next}
}

func (f *FailingStore) FailGet(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = append(f.failGet, substr)
}

func (f *FailingStore) FailPut(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut = append(f.failPut, substr)
}

func (f *FailingStore) FailDelete(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete = append(f.failDelete, substr)
}

// Reset clears configured failures and recorded calls.
func (f *FailingStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet, f.failPut, f.failDelete = nil, nil, nil
	f.gets, f.deletes = nil, nil
}

// Gets returns the paths passed to Get, in call order.
func (f *FailingStore) Gets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.gets...)
}

// Deletes returns the paths passed to Delete, in call order.
func (f *FailingStore) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *FailingStore) Put(ctx context.Context, path string, content []byte, message string) (storage.PutResult, error) {
	f.mu.Lock()
	fail := matches(f.failPut, path)
	f.mu.Unlock()
	if fail {
		return storage.PutResult{}, ErrInjected
	}
	return f.ObjectStore.Put(ctx, path, content, message)
}

func (f *FailingStore) Get(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	f.gets = append(f.gets, path)
	fail := matches(f.failGet, path)
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.ObjectStore.Get(ctx, path)
}

func (f *FailingStore) Delete(ctx context.Context, path string, message string) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, path)
	fail := matches(f.failDelete, path)
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.ObjectStore.Delete(ctx, path, message)
}

func matches(patterns []string, path string) bool {
	for _, p := range patterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}
