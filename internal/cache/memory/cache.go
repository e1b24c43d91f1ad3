// Package memory is an in-process geocode cache shared across ingest batches.
package memory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/epiwatch/backend/internal/geocode"
)

// Cache keeps positive and negative outcomes in separate LRUs so each can
// carry its own TTL.
type Cache struct {
	found    *expirable.LRU[string, geocode.Entry]
	notFound *expirable.LRU[string, geocode.Entry]
}

func New(size int, ttl, negativeTTL time.Duration) *Cache {
	if size <= 0 {
		size = 10000
	}
	negSize := size / 4
	if negSize < 1 {
		negSize = 1
	}
	return &Cache{
		found:    expirable.NewLRU[string, geocode.Entry](size, nil, ttl),
		notFound: expirable.NewLRU[string, geocode.Entry](negSize, nil, negativeTTL),
	}
}

func (c *Cache) Get(_ context.Context, key string) (geocode.Entry, bool, error) {
	if e, ok := c.found.Get(key); ok {
		return e, true, nil
	}
	if e, ok := c.notFound.Get(key); ok {
		return e, true, nil
	}
	return geocode.Entry{}, false, nil
}

func (c *Cache) Set(_ context.Context, key string, entry geocode.Entry) error {
	if entry.Found {
		c.notFound.Remove(key)
		c.found.Add(key, entry)
		return nil
	}
	c.found.Remove(key)
	c.notFound.Add(key, entry)
	return nil
}

func (c *Cache) Len() int {
	return c.found.Len() + c.notFound.Len()
}

func (c *Cache) Purge() {
	c.found.Purge()
	c.notFound.Purge()
}
