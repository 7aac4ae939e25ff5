package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value      string
	expiration time.Time
}

// Memory is an in-process TTL cache. A janitor goroutine sweeps expired
// entries so the map does not grow unbounded between reads.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	janitorStop chan struct{}
	janitorDone chan struct{}
	closeOnce   sync.Once
}

func NewMemory(sweepEvery time.Duration) *Memory {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	m := &Memory{
		entries:     make(map[string]memoryEntry),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go m.janitor(sweepEvery)
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || time.Now().After(e.expiration) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiration: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) janitor(every time.Duration) {
	defer close(m.janitorDone)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.janitorStop:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for key, e := range m.entries {
				if now.After(e.expiration) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.janitorStop)
		<-m.janitorDone
	})
	return nil
}
