package geocode

import (
	"context"
	"strings"
	"sync"
)

// Entry is a cached lookup outcome. Found=false is an explicit negative
// result and is cached like a positive one.
type Entry struct {
	Found   bool    `json:"found"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
	Country string  `json:"country,omitempty"`
}

// Cache is the per-invocation geocode cache.
type Cache interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry)
}

// SharedCache is an optional cross-batch layer consulted on a run-cache miss.
type SharedCache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
}

// CacheKey builds the lowercase "city|country" key. Either part may be empty.
func CacheKey(city, country string) string {
	return strings.ToLower(strings.TrimSpace(city) + "|" + strings.TrimSpace(country))
}

// Query builds the free-text query sent to the provider.
func Query(city, country string) string {
	city = strings.TrimSpace(city)
	country = strings.TrimSpace(country)
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	default:
		return country
	}
}

// RunCache is a map-backed Cache owned by a single pipeline run.
type RunCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRunCache() *RunCache {
	return &RunCache{entries: make(map[string]Entry)}
}

func (c *RunCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *RunCache) Set(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

func (c *RunCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
