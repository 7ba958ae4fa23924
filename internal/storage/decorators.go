package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/agjmills/gallery/internal/metrics"
)

// LimitedStore rejects writes larger than a fixed ceiling before any I/O.
type LimitedStore struct {
	next     ObjectStore
	maxBytes int64
}

// WithObjectLimit enforces maxBytes on every Put of next.
func WithObjectLimit(next ObjectStore, maxBytes int64) *LimitedStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectSize
	}
	return &LimitedStore{next: next, maxBytes: maxBytes}
}

func (l *LimitedStore) Put(ctx context.Context, path string, content []byte, message string) (PutResult, error) {
	if int64(len(content)) > l.maxBytes {
		return PutResult{}, fmt.Errorf("%w: %d bytes (max %d)", ErrObjectTooLarge, len(content), l.maxBytes)
	}
	return l.next.Put(ctx, path, content, message)
}

func (l *LimitedStore) Get(ctx context.Context, path string) ([]byte, error) {
	return l.next.Get(ctx, path)
}

func (l *LimitedStore) Delete(ctx context.Context, path string, message string) error {
	return l.next.Delete(ctx, path, message)
}

func (l *LimitedStore) HealthCheck(ctx context.Context) error {
	return l.next.HealthCheck(ctx)
}

// MaxObjectSize returns the enforced ceiling.
func (l *LimitedStore) MaxObjectSize() int64 {
	return l.maxBytes
}

// InstrumentedStore records Prometheus metrics for every store call.
type InstrumentedStore struct {
	next ObjectStore
}

// Instrument wraps next with operation metrics.
func Instrument(next ObjectStore) *InstrumentedStore {
	return &InstrumentedStore{next: next}
}

func (i *InstrumentedStore) Put(ctx context.Context, path string, content []byte, message string) (PutResult, error) {
	start := time.Now()
	res, err := i.next.Put(ctx, path, content, message)
	metrics.RecordStoreOperation("put", err, time.Since(start))
	return res, err
}

func (i *InstrumentedStore) Get(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	content, err := i.next.Get(ctx, path)
	metrics.RecordStoreOperation("get", err, time.Since(start))
	return content, err
}

func (i *InstrumentedStore) Delete(ctx context.Context, path string, message string) error {
	start := time.Now()
	err := i.next.Delete(ctx, path, message)
	metrics.RecordStoreOperation("delete", err, time.Since(start))
	return err
}

func (i *InstrumentedStore) HealthCheck(ctx context.Context) error {
	return i.next.HealthCheck(ctx)
}
