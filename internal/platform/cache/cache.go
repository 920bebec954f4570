// Package cache is a shared, best-effort, time-bounded key-value store. Entries
// disappear on expiry only; nothing is invalidated on writes.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hms/hms/internal/platform/clock"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store defines the interface for a cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a thread-safe in-process Store with lazy expiration driven by
// an injected clock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   clock.Clock
}

// NewMemoryStore creates a MemoryStore. A nil clock means wall-clock time.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.New()
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), clock: c}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, ErrMiss
	}
	return entry.data, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{data: buf, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.entries {
		if !now.Before(v.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// StartCleanup sweeps expired entries every interval until ctx is done.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.Sweep()
			}
		}
	}()
}
