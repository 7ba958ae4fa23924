package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agjmills/gallery/internal/logger"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the store circuit breaker is open.
var ErrUnavailable = errors.New("object store temporarily unavailable")

// BreakerSettings configures NewBreakerStore.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// BreakerStore fails fast once the wrapped store keeps failing, instead of
// letting every request wait for the remote timeout. Missing objects, size
// violations and bad paths are caller errors and never trip the breaker.
type BreakerStore struct {
	next ObjectStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next in a circuit breaker.
func NewBreakerStore(next ObjectStore, s BreakerSettings) *BreakerStore {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "object-store",
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrObjectTooLarge) ||
				errors.Is(err, ErrInvalidPath) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) Put(ctx context.Context, path string, content []byte, message string) (PutResult, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Put(ctx, path, content, message)
	})
	if err != nil {
		return PutResult{}, breakerErr(err)
	}
	return res.(PutResult), nil
}

func (b *BreakerStore) Get(ctx context.Context, path string) ([]byte, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Get(ctx, path)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.([]byte), nil
}

func (b *BreakerStore) Delete(ctx context.Context, path string, message string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Delete(ctx, path, message)
	})
	return breakerErr(err)
}

// HealthCheck reports ErrUnavailable while the breaker is open and otherwise
// probes the backend directly, outside the breaker counts.
func (b *BreakerStore) HealthCheck(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return ErrUnavailable
	}
	return b.next.HealthCheck(ctx)
}

// State reports the breaker state, for diagnostics.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
