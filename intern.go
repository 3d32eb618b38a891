package recordbin

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// StringCache interns field names decoded from record headers, so that
// repeated decoding of records of the same class does not allocate a new
// string per field name. It is safe for concurrent use.
type StringCache struct {
	mu      sync.RWMutex
	entries map[uint64][]string
	count   int
	limit   int
}

// DefaultStringCacheLimit bounds the number of interned strings.
const DefaultStringCacheLimit = 16384

// maxInternLen keeps long strings (which are rarely field names) out of the cache.
const maxInternLen = 128

func NewStringCache(limit int) *StringCache {
	if limit <= 0 {
		limit = DefaultStringCacheLimit
	}
	return &StringCache{entries: make(map[uint64][]string), limit: limit}
}

// String returns a string equal to b, reusing a cached instance if possible.
func (c *StringCache) String(b []byte) string {
	if c == nil || len(b) > maxInternLen {
		return string(b)
	}
	h := xxhash.Sum64(b)

	c.mu.RLock()
	for _, s := range c.entries[h] {
		if s == string(b) {
			c.mu.RUnlock()
			return s
		}
	}
	c.mu.RUnlock()

	s := string(b)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count >= c.limit {
		clear(c.entries)
		c.count = 0
	}
	c.entries[h] = append(c.entries[h], s)
	c.count++
	return s
}

func (c *StringCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}
