package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore persists fixed-window counters keyed by client identity. The
// window TTL is applied when a counter is created; once it expires a fresh
// window implicitly begins at zero.
type CounterStore interface {
	// Peek returns the current count for the key, zero when no live window exists.
	Peek(ctx context.Context, key string) (int64, error)
	// Incr adds one to the key's counter, starting a new window with the
	// supplied TTL when none exists, and returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Close(ctx context.Context) error
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
}

// NewMemory returns an in-process counter store suitable for single-instance
// deployments and tests.
func NewMemory() CounterStore {
	return &memoryStore{windows: make(map[string]memoryWindow)}
}

func (s *memoryStore) Peek(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.windows[key]
	if !ok {
		return 0, nil
	}
	if time.Now().After(window.resetAt) {
		delete(s.windows, key)
		return 0, nil
	}
	return window.count, nil
}

func (s *memoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	window, ok := s.windows[key]
	if !ok || now.After(window.resetAt) {
		window = memoryWindow{resetAt: now.Add(ttl)}
	}
	window.count++
	s.windows[key] = window
	return window.count, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
