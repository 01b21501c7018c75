// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/ratelimit"
)

// window tracks one fixed rate limit window for a key.
type window struct {
	count int
	reset time.Time
}

// CounterStore implements ratelimit.CounterStore with fixed windows in
// memory. Thread-safe for concurrent access. Includes background cleanup
// to prevent unbounded memory growth.
type CounterStore struct {
	windows         map[string]*window
	mu              sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
}

// NewCounterStore creates a new in-memory counter store with the default
// cleanup interval of 5 minutes.
func NewCounterStore() *CounterStore {
	return NewCounterStoreWithConfig(5 * time.Minute)
}

// NewCounterStoreWithConfig creates a counter store with a custom cleanup interval.
func NewCounterStoreWithConfig(cleanupInterval time.Duration) *CounterStore {
	return &CounterStore{
		windows:         make(map[string]*window),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}
}

// Incr increments the counter for key within its current fixed window.
// A new window opens when the previous one has elapsed; the count resets
// to zero at the boundary. Returns the post-increment count and the time
// remaining until the window resets.
func (s *CounterStore) Incr(ctx context.Context, key string, windowSize time.Duration) (int, time.Duration, error) {
	if windowSize <= 0 {
		windowSize = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(windowSize)}
		s.windows[key] = w
	}
	w.count++

	return w.count, w.reset.Sub(now), nil
}

// StartCleanup starts the background cleanup goroutine.
// It stops when ctx is cancelled or Stop() is called.
func (s *CounterStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

// cleanup removes windows that have already reset.
func (s *CounterStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for key, w := range s.windows {
		if !now.Before(w.reset) {
			delete(s.windows, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("counter store cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(s.windows))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *CounterStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Size returns the current number of tracked keys.
// Useful for testing and monitoring memory usage.
func (s *CounterStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Compile-time interface verification.
var _ ratelimit.CounterStore = (*CounterStore)(nil)
