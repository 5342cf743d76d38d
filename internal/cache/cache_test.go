package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()

	_, ok := m.Get("missing")
	assert.False(t, ok)

	m.Set("k", "v", time.Minute)
	got, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Set("k", 42, time.Hour)

	_, ok := m.Get("k")
	assert.True(t, ok)

	// Entry is dropped lazily once past its TTL.
	now = now.Add(time.Hour + time.Second)
	_, ok = m.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryOverwrite(t *testing.T) {
	m := NewMemory()
	m.Set("k", 1, time.Minute)
	m.Set("k", 2, time.Minute)

	got, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryZeroTTLIgnored(t *testing.T) {
	m := NewMemory()
	m.Set("k", 1, 0)
	_, ok := m.Get("k")
	assert.False(t, ok)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Set("shared", j, time.Minute)
				m.Get("shared")
			}
		}()
	}
	wg.Wait()

	_, ok := m.Get("shared")
	assert.True(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "vision:abc123", KeyVision("abc123"))
	assert.Equal(t, "price:iphone 13 128 go", KeyPrice("  iPhone 13 128 Go "))
	// Queries differing only in case share an entry.
	assert.Equal(t, KeyPrice("IPHONE 13"), KeyPrice("iphone 13"))
}
