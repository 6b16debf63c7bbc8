package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader produces a fresh value for a Snapshot
type Loader[T any] func(ctx context.Context) (T, error)

// RefreshObserver is told about every completed refresh attempt
type RefreshObserver func(name string, ok bool, duration time.Duration)

// Snapshot holds one read-mostly value with a time-based refresh.
// Reads during a refresh see the previous value; concurrent refreshes are
// collapsed into one load.
type Snapshot[T any] struct {
	name   string
	ttl    time.Duration
	loader Loader[T]

	mu          sync.RWMutex
	value       T
	loaded      bool
	lastRefresh time.Time

	group    singleflight.Group
	now      func() time.Time
	observer RefreshObserver
}

// Option configures a Snapshot
type Option[T any] func(*Snapshot[T])

// WithClock overrides time.Now
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Snapshot[T]) { s.now = now }
}

// WithObserver registers a refresh observer
func WithObserver[T any](o RefreshObserver) Option[T] {
	return func(s *Snapshot[T]) { s.observer = o }
}

// NewSnapshot creates an empty snapshot; the first Get loads it
func NewSnapshot[T any](name string, ttl time.Duration, loader Loader[T], opts ...Option[T]) *Snapshot[T] {
	s := &Snapshot[T]{
		name:   name,
		ttl:    ttl,
		loader: loader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached value, refreshing it first when it is older than the
// TTL. A failed refresh keeps serving the previous value if there is one.
func (s *Snapshot[T]) Get(ctx context.Context) (T, error) {
	s.mu.RLock()
	value, loaded, fresh := s.value, s.loaded, s.now().Sub(s.lastRefresh) < s.ttl
	s.mu.RUnlock()

	if loaded && fresh {
		return value, nil
	}

	refreshed, err := s.Refresh(ctx)
	if err != nil {
		if loaded {
			return value, nil
		}
		var zero T
		return zero, err
	}
	return refreshed, nil
}

// Refresh loads a new value unconditionally
func (s *Snapshot[T]) Refresh(ctx context.Context) (T, error) {
	v, err, _ := s.group.Do(s.name, func() (interface{}, error) {
		start := s.now()
		value, err := s.loader(ctx)
		if s.observer != nil {
			s.observer(s.name, err == nil, s.now().Sub(start))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to refresh %s: %w", s.name, err)
		}

		s.mu.Lock()
		s.value = value
		s.loaded = true
		s.lastRefresh = s.now()
		s.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// LastRefresh is the time of the last successful refresh; zero if never loaded
func (s *Snapshot[T]) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// Peek returns the held value without loading; ok is false before the first load
func (s *Snapshot[T]) Peek() (value T, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.loaded
}

// Invalidate forces the next Get to reload
func (s *Snapshot[T]) Invalidate() {
	s.mu.Lock()
	s.lastRefresh = time.Time{}
	s.mu.Unlock()
}
