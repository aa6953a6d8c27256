package cache

import (
	"context"
	"sync"
	"time"

	"billdesk/backend/internal/domain"
)

type memoryEntry struct {
	product   domain.Product
	expiresAt time.Time
}

// MemoryProductCache is a process-local ProductCache used in tests.
type MemoryProductCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryProductCache() *MemoryProductCache {
	return &MemoryProductCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryProductCache) Get(_ context.Context, key string) (*domain.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	product := entry.product
	return &product, true, nil
}

func (c *MemoryProductCache) Set(_ context.Context, key string, value *domain.Product, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{product: *value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryProductCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}
