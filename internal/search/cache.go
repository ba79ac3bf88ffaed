package search

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/romlind/issuescout/internal/db"
	"github.com/romlind/issuescout/internal/models"
)

// DefaultCacheTTL is how long a cached query result stays usable
const DefaultCacheTTL = 30 * time.Minute

const cacheSize = 1000

// Cache stores query results keyed by the exact query string. A small
// LRU front avoids hitting the store for hot queries; entries are also
// persisted so results survive restarts. Every storage error degrades
// to a miss — the cache is an optimization, never a correctness
// dependency.
type Cache struct {
	store *db.DB
	front *lru.Cache[string, *models.SearchCacheEntry]
	log   zerolog.Logger
	now   func() time.Time
}

// NewCache creates a cache backed by the given store
func NewCache(store *db.DB, log zerolog.Logger) *Cache {
	front, err := lru.New[string, *models.SearchCacheEntry](cacheSize)
	if err != nil {
		// only possible with a non-positive size
		panic(err)
	}
	return &Cache{
		store: store,
		front: front,
		log:   log,
		now:   time.Now,
	}
}

// Get returns the cached issue IDs for the exact query string, or
// ok=false when the entry is absent or expired. Expired entries are
// never served.
func (c *Cache) Get(ctx context.Context, query string) ([]int64, bool) {
	now := c.now()

	if entry, ok := c.front.Get(query); ok {
		if now.Before(entry.ExpiresAt) {
			return entry.IssueIDs, true
		}
		c.front.Remove(query)
	}

	entry, err := c.store.GetCacheEntry(ctx, query)
	if err != nil {
		c.log.Warn().Err(err).Str("query", query).Msg("cache read failed, treating as miss")
		return nil, false
	}
	if entry == nil || !now.Before(entry.ExpiresAt) {
		return nil, false
	}

	c.front.Add(query, entry)
	return entry.IssueIDs, true
}

// Put overwrites the entry for the exact query string with a fresh
// expiry of now+ttl. A non-positive ttl falls back to the default.
func (c *Cache) Put(ctx context.Context, query string, ids []int64, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	now := c.now()
	entry := &models.SearchCacheEntry{
		Query:     query,
		IssueIDs:  ids,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	c.front.Add(query, entry)

	if err := c.store.PutCacheEntry(ctx, entry); err != nil {
		c.log.Warn().Err(err).Str("query", query).Msg("cache write failed")
	}
}

// Clear purges the in-memory front. Persisted entries are wiped by the
// store's ClearData.
func (c *Cache) Clear() {
	c.front.Purge()
}
