// Package cache memoizes expensive upstream calls. It offers a short-TTL
// live store plus an independently-keyed long-TTL fallback slot per cached
// quantity; the fallback is a disaster-recovery read path used only when a
// live fetch fails.
package cache

import (
	"context"
	"sync"
	"time"
)

// Provider is the low-level byte store backing a cache. Implementations
// must be safe for concurrent use.
type Provider interface {
	// Get returns the value for key if present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes key.
	Del(ctx context.Context, key string) error
	// Close releases provider resources.
	Close(ctx context.Context) error
}

// sweep expired entries every N writes. Work is request-triggered; the
// provider runs no background tasks.
const sweepEvery = 256

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryProvider is an in-process Provider with lazy expiry.
type MemoryProvider struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	writes  int

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewMemoryProvider creates an empty in-process provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if entry.expired(p.now()) {
		p.mu.Lock()
		// Re-check under the write lock; a refresh may have raced in.
		if current, still := p.entries[key]; still && current.expired(p.now()) {
			delete(p.entries, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = p.now().Add(ttl)
	}

	p.mu.Lock()
	p.entries[key] = entry
	p.writes++
	if p.writes%sweepEvery == 0 {
		now := p.now()
		for k, e := range p.entries {
			if e.expired(now) {
				delete(p.entries, k)
			}
		}
	}
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) Close(context.Context) error {
	p.mu.Lock()
	p.entries = make(map[string]memoryEntry)
	p.mu.Unlock()
	return nil
}
