package cache

import (
	"sync"
	"time"
)

// Cache is the small injected capability the price oracle and the order
// history adapter key their lookups through. Values are plain strings so one
// cache serves prices and pair mappings alike.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
}

type entry struct {
	value   string
	expires time.Time
}

// Memory is a TTL map cache. A zero ttl means the entry never expires.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	// now is swapped in tests
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]entry{}, now: time.Now}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

func (m *Memory) Set(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
}
