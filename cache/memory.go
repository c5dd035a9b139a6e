package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store used in tests and local development.
// TTLs are honoured lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	sets    map[string]map[string]struct{}
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory) SetAdd(ctx context.Context, setKey, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[setKey]
	if !ok {
		set = make(map[string]struct{})
		m.sets[setKey] = set
	}
	if _, exists := set[member]; exists {
		return false, nil
	}
	set[member] = struct{}{}
	return true, nil
}

func (m *Memory) SetRemove(ctx context.Context, setKey, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.sets[setKey]; ok {
		delete(set, member)
	}
	return nil
}

func (m *Memory) IncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if entry, ok := m.entries[key]; ok {
		if entry.expiresAt.IsZero() || time.Now().Before(entry.expiresAt) {
			current, _ = strconv.ParseInt(entry.value, 10, 64)
		}
	}
	current += n

	entry := memoryEntry{value: strconv.FormatInt(current, 10)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = entry
	return current, nil
}

func (m *Memory) GetInt(ctx context.Context, key string) (int64, error) {
	val, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (m *Memory) Close() error { return nil }
