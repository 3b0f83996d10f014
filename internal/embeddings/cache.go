package embeddings

import (
	"context"
	"sync"
)

// DefaultCacheSize bounds the number of cached query embeddings.
const DefaultCacheSize = 100

// Cached memoizes embeddings of single texts, which is what interactive
// sessions send for every query. When the cache is full it is emptied
// wholesale before the new entry is added.
type Cached struct {
	inner Provider
	size  int

	mu      sync.Mutex
	entries map[string][]float32
	hits    int
	misses  int
}

// NewCached wraps p with a cache holding at most size entries.
func NewCached(p Provider, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cached{inner: p, size: size, entries: make(map[string][]float32, size)}
}

func (c *Cached) ModelID() string { return c.inner.ModelID() }

func (c *Cached) Dim() int { return c.inner.Dim() }

// Embed serves one-item batches from the cache; larger batches pass through.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.inner.Embed(ctx, texts)
	}
	key := texts[0]

	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return [][]float32{v}, nil
	}
	c.misses++
	c.mu.Unlock()

	vecs, err := c.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.size {
		clear(c.entries)
	}
	if len(vecs) == 1 {
		c.entries[key] = vecs[0]
	}
	c.mu.Unlock()
	return vecs, nil
}

// Stats reports cache hits and misses so far.
func (c *Cached) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
