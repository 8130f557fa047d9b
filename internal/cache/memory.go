package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Cache used in tests and as the fallback
// when Redis is unavailable. Expired entries are dropped lazily on read
// and by a periodic sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value     []byte
	counter   int64
	isCounter bool
	expiresAt time.Time
}

func NewMemory() *Memory {
	m := &Memory{entries: make(map[string]memEntry)}
	go m.sweep()
	return m
}

func (m *Memory) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		m.mu.Lock()
		for k, e := range m.entries {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.mu.Unlock()
	}
}

func (m *Memory) live(e memEntry) bool {
	return e.expiresAt.IsZero() || time.Now().Before(e.expiresAt)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.live(e) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.live(e) {
		e = memEntry{isCounter: true}
		if ttl > 0 {
			e.expiresAt = time.Now().Add(ttl)
		}
	}
	e.counter++
	e.isCounter = true
	m.entries[key] = e
	return e.counter, nil
}
