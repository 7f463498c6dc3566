package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultResultCacheSize is the default cache capacity in responses.
const DefaultResultCacheSize = 100

// DefaultResultCacheTTL is how long a cached response stays valid.
const DefaultResultCacheTTL = 5 * time.Minute

// resultCache memoizes complete responses keyed by query and options.
// Entries expire on TTL and the whole cache is purged on index writes,
// so a cached response never outlives the data it ranked.
type resultCache struct {
	cache *expirable.LRU[string, *Response]
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 {
		size = DefaultResultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultResultCacheTTL
	}
	return &resultCache{
		cache: expirable.NewLRU[string, *Response](size, nil, ttl),
	}
}

// key builds a stable cache key from the query and the options that affect
// ranking. Chunk types are sorted so filter order does not fragment the
// cache.
func (c *resultCache) key(query string, opts Options) string {
	types := make([]string, len(opts.Types))
	for i, t := range opts.Types {
		types[i] = string(t)
	}
	sort.Strings(types)

	h := sha256.Sum256(fmt.Appendf(nil, "%s\x00%d\x00%t\x00%t\x00%d\x00%d\x00%s\x00%s",
		query, opts.Limit, opts.NoRerank, opts.IncludeScores,
		opts.Filters.YearFrom, opts.Filters.YearTo, opts.Filters.School,
		strings.Join(types, ",")))
	return hex.EncodeToString(h[:])
}

// get returns a copy of the cached response marked as a cache hit, or nil.
func (c *resultCache) get(query string, opts Options) *Response {
	cached, ok := c.cache.Get(c.key(query, opts))
	if !ok {
		return nil
	}
	// Copy the envelope so callers see their own flags; results are
	// immutable once cached.
	resp := *cached
	resp.CacheHit = true
	return &resp
}

func (c *resultCache) put(query string, opts Options, resp *Response) {
	c.cache.Add(c.key(query, opts), resp)
}

// purge drops all entries. Called after Index and Delete.
func (c *resultCache) purge() {
	c.cache.Purge()
}

func (c *resultCache) len() int {
	return c.cache.Len()
}
