package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-process cache with TTLs and a least-recently-used
// bound on the number of entries
type MemoryCache struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type memoryEntry struct {
	key        string
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates an in-memory cache
func NewMemoryCache(opts Options) *MemoryCache {
	return &MemoryCache{
		opts:    opts,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[m.opts.Prefix+key]
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}
	entry := el.Value.(*memoryEntry)
	if m.expired(entry) {
		m.remove(el)
		return nil, ErrCacheMiss{Key: key}
	}
	m.order.MoveToFront(el)
	return entry.value, nil
}

// Set stores a value in the cache with a TTL
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = m.opts.DefaultTTL
	}
	entry := &memoryEntry{key: m.opts.Prefix + key, value: value}
	if ttl > 0 {
		entry.expiration = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[entry.key]; ok {
		el.Value = entry
		m.order.MoveToFront(el)
		return nil
	}
	m.entries[entry.key] = m.order.PushFront(entry)
	for m.opts.MaxItems > 0 && m.order.Len() > m.opts.MaxItems {
		m.remove(m.order.Back())
	}
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[m.opts.Prefix+key]; ok {
		m.remove(el)
	}
	return nil
}

// Clear removes all values with this cache's prefix
func (m *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, el := range m.entries {
		if strings.HasPrefix(key, m.opts.Prefix) {
			m.remove(el)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Close is a no-op; the cache holds no background resources
func (m *MemoryCache) Close() error {
	return nil
}

func (m *MemoryCache) expired(e *memoryEntry) bool {
	return !e.expiration.IsZero() && m.now().After(e.expiration)
}

func (m *MemoryCache) remove(el *list.Element) {
	delete(m.entries, el.Value.(*memoryEntry).key)
	m.order.Remove(el)
}
