package authinfra

import (
	"context"
	"sync"
	"time"
)

type cachedDoc struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKeySetCache is the per-process fallback when Redis is not
// configured.
type MemoryKeySetCache struct {
	mu   sync.RWMutex
	docs map[string]cachedDoc
	now  func() time.Time
}

func NewMemoryKeySetCache() *MemoryKeySetCache {
	return &MemoryKeySetCache{
		docs: make(map[string]cachedDoc),
		now:  time.Now,
	}
}

func (c *MemoryKeySetCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	doc, ok := c.docs[key]
	c.mu.RUnlock()

	if !ok || c.now().After(doc.expiresAt) {
		return nil, false, nil
	}
	out := make([]byte, len(doc.value))
	copy(out, doc.value)
	return out, true, nil
}

func (c *MemoryKeySetCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	c.docs[key] = cachedDoc{value: stored, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}
