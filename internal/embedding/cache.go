package embedding

import (
	"container/list"
	"context"
	"sync"
)

// Cache is an LRU of vectors keyed by text.
type Cache struct {
	capacity int
	mu       sync.Mutex
	items    map[string]*list.Element
	lru      *list.List
}

type cacheEntry struct {
	key    string
	vector []float32
}

// NewCache creates a cache holding at most capacity vectors.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 2048
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the vector for key and marks it recently used.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).vector, true
}

// Set stores vector under key, evicting the least recently used entry when full.
func (c *Cache) Set(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).vector = vector
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, vector: vector})
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachedEmbedder serves repeated texts from a Cache and sends only misses
// to the wrapped Embedder.
type CachedEmbedder struct {
	inner Embedder
	cache *Cache
}

// NewCachedEmbedder wraps inner with an LRU of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: NewCache(capacity)}
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := make(map[string][]int)
	misses := make([]string, 0)

	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		if _, queued := missIdx[t]; !queued {
			misses = append(misses, t)
		}
		missIdx[t] = append(missIdx[t], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, misses)
	if err != nil {
		return nil, err
	}
	for j, t := range misses {
		c.cache.Set(t, vectors[j])
		for _, i := range missIdx[t] {
			out[i] = vectors[j]
		}
	}
	return out, nil
}
