package objectstore

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedFetcher keeps recently fetched objects in memory so the audio proxy
// and a retried analysis do not download the same clip twice.
type CachedFetcher struct {
	next  Fetcher
	cache *gocache.Cache
}

// NewCachedFetcher wraps next with a TTL cache.
func NewCachedFetcher(next Fetcher, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{
		next:  next,
		cache: gocache.New(ttl, ttl*2),
	}
}

// Fetch returns the cached bytes or reads through to the wrapped fetcher.
// Errors are not cached.
func (c *CachedFetcher) Fetch(ctx context.Context, videoID, file string) ([]byte, error) {
	key := videoID + "/" + file
	if cached, found := c.cache.Get(key); found {
		return cached.([]byte), nil
	}

	data, err := c.next.Fetch(ctx, videoID, file)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, data, gocache.DefaultExpiration)
	return data, nil
}

// Len is the number of cached objects.
func (c *CachedFetcher) Len() int {
	return c.cache.ItemCount()
}
