// Package cache is a process-local TTL cache for expensive provider results.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Store is the read/write surface the pipeline depends on.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Memory is a mutex-guarded in-process Store. Expired entries are dropped
// lazily on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(key string) (any, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, ok := m.entries[key]; ok && m.now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// KeyVision builds the cache key for a vision identification by image hash.
func KeyVision(imageHash string) string {
	return "vision:" + imageHash
}

// KeyPrice builds the cache key for a price estimate. Queries differing only
// in case or surrounding whitespace share an entry.
func KeyPrice(query string) string {
	return "price:" + strings.ToLower(strings.TrimSpace(query))
}
