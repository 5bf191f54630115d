// Package cache memoizes provider responses for the duration of a search
// burst. Entries expire after a short TTL and the least recently used entry
// is evicted when the cache is full. Nothing is persisted.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

// Defaults for the result cache.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 512
)

// Config configures a ResultCache.
type Config struct {
	// TTL is how long an entry stays valid after Put.
	TTL time.Duration

	// Capacity is the maximum number of entries.
	Capacity int
}

// Key identifies one provider response.
type Key struct {
	Source      domain.SourceType
	Query       string
	Fingerprint string
}

// Entry is a snapshot of one provider response.
type Entry struct {
	Key       Key
	Papers    []*domain.Paper
	ExpiresAt time.Time
}

// ResultCache is a TTL and capacity bounded LRU of provider responses.
// Papers are copied on Put and on Get so that callers can never mutate a
// cached entry. It is safe for concurrent use.
type ResultCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	items    map[Key]*list.Element
	lru      *list.List
	now      func() time.Time
	metrics  *observability.Metrics
}

// Option customizes a ResultCache.
type Option func(*ResultCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// WithMetrics records hits, misses and evictions.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *ResultCache) { c.metrics = m }
}

// New creates a result cache.
func New(cfg Config, opts ...Option) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	c := &ResultCache{
		ttl:      cfg.TTL,
		capacity: cfg.Capacity,
		items:    make(map[Key]*list.Element, cfg.Capacity),
		lru:      list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewKey builds a cache key. The query is normalized so that case and
// whitespace differences share an entry.
func NewKey(source domain.SourceType, query, fingerprint string) Key {
	return Key{Source: source, Query: domain.NormalizeQuery(query), Fingerprint: fingerprint}
}

// Get returns a copy of the cached papers for key. Expired entries are
// removed and reported as a miss.
func (c *ResultCache) Get(key Key) ([]*domain.Paper, bool) {
	c.mu.Lock()
	elem, ok := c.items[key]
	if ok {
		entry := elem.Value.(*Entry)
		if c.now().Before(entry.ExpiresAt) {
			c.lru.MoveToFront(elem)
			papers := clonePapers(entry.Papers)
			c.mu.Unlock()
			c.metrics.RecordCacheHit(string(key.Source))
			return papers, true
		}
		c.removeElement(elem)
	}
	c.mu.Unlock()

	c.metrics.RecordCacheMiss(string(key.Source))
	return nil, false
}

// Put stores a copy of papers under key, replacing any previous entry and
// evicting the least recently used entries beyond capacity.
func (c *ResultCache) Put(key Key, papers []*domain.Paper) {
	entry := &Entry{
		Key:    key,
		Papers: clonePapers(papers),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry.ExpiresAt = c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		elem.Value = entry
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(entry)
	for c.lru.Len() > c.capacity {
		c.removeElement(c.lru.Back())
		c.metrics.RecordCacheEviction()
	}
}

// Len returns the number of entries, including expired ones not yet removed.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge removes every expired entry and returns how many were removed.
func (c *ResultCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*Entry).ExpiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// removeElement drops elem. Caller holds mu.
func (c *ResultCache) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.items, elem.Value.(*Entry).Key)
}

func clonePapers(papers []*domain.Paper) []*domain.Paper {
	out := make([]*domain.Paper, 0, len(papers))
	for _, p := range papers {
		if p != nil {
			out = append(out, p.Clone())
		}
	}
	return out
}
