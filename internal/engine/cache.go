package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// defaultCacheSize is the query cache capacity.
	defaultCacheSize = 128
	// defaultCacheTTL is how long a cached query result stays valid.
	defaultCacheTTL = 5 * time.Minute
)

// cachedResult is one query cache entry with its insertion time.
type cachedResult struct {
	result   QueryResult
	storedAt time.Time
}

// queryCache is a TTL-bounded LRU of retrieval results. Entries are only
// valid between writer-class index operations; the engine purges the whole
// cache on Ingest, Clear, and Load rather than tracking fine-grained
// dependencies.
type queryCache struct {
	entries *lru.Cache[string, cachedResult]
	ttl     time.Duration
}

// newQueryCache constructs a queryCache with the given capacity and TTL.
func newQueryCache(size int, ttl time.Duration) (*queryCache, error) {
	entries, err := lru.New[string, cachedResult](size)
	if err != nil {
		return nil, fmt.Errorf("engine: create query cache: %w", err)
	}
	return &queryCache{entries: entries, ttl: ttl}, nil
}

// get returns the cached result for key if present and not expired.
func (c *queryCache) get(key string) (QueryResult, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return QueryResult{}, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.entries.Remove(key)
		return QueryResult{}, false
	}
	return entry.result, true
}

// put stores a result under key.
func (c *queryCache) put(key string, res QueryResult) {
	c.entries.Add(key, cachedResult{result: res, storedAt: time.Now()})
}

// purge drops every entry.
func (c *queryCache) purge() {
	c.entries.Purge()
}

// cacheKey derives a stable key from the query and the retrieval parameters
// that shape the result.
func cacheKey(question string, topK int, minRelevance float64, maxContextSize int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%g|%d", question, topK, minRelevance, maxContextSize))
	return hex.EncodeToString(sum[:])
}
