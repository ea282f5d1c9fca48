package analysis

import (
	"crypto/sha256"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of documents kept when no size is configured.
const DefaultCacheSize = 128

type cacheKey struct {
	path string
	sum  [sha256.Size]byte
}

// DocumentCache keeps recently type-checked documents, keyed by path and
// content, so repeated queries against an unchanged buffer skip parsing and
// type-checking.
type DocumentCache struct {
	docs *lru.Cache[cacheKey, *Document]

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats tracks cache performance.
type CacheStats struct {
	Hits   int64
	Misses int64
	Len    int
}

func NewDocumentCache(size int) (*DocumentCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	docs, err := lru.New[cacheKey, *Document](size)
	if err != nil {
		return nil, err
	}
	return &DocumentCache{docs: docs}, nil
}

func keyOf(path string, src []byte) cacheKey {
	return cacheKey{path: path, sum: sha256.Sum256(src)}
}

// Get returns the cached document for path when its content equals src.
func (c *DocumentCache) Get(path string, src []byte) (*Document, bool) {
	doc, ok := c.docs.Get(keyOf(path, src))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return doc, ok
}

// Add stores doc under its path and content.
func (c *DocumentCache) Add(doc *Document) {
	c.docs.Add(keyOf(doc.Path, doc.Src), doc)
}

// Load returns the cached document or builds and stores it with load.
func (c *DocumentCache) Load(path string, src []byte, load func() (*Document, error)) (*Document, error) {
	if doc, ok := c.Get(path, src); ok {
		return doc, nil
	}
	doc, err := load()
	if err != nil {
		return nil, err
	}
	c.Add(doc)
	return doc, nil
}

// InvalidateFile drops every version of path.
func (c *DocumentCache) InvalidateFile(path string) {
	for _, k := range c.docs.Keys() {
		if k.path == path {
			c.docs.Remove(k)
		}
	}
}

// Clear drops all documents.
func (c *DocumentCache) Clear() {
	c.docs.Purge()
}

func (c *DocumentCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Len:    c.docs.Len(),
	}
}
