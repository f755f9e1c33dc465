// Package cache keeps recently fetched pages in memory so repeated API
// requests within a client-chosen window skip the browser.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/stealthfetch/models"
)

type entry struct {
	response  *models.FetchResponse
	createdAt time.Time
}

// Cache is an in-memory store of successful fetch responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries responses. A background
// goroutine evicts entries older than ttl every 5 minutes.
func New(maxEntries int, ttl time.Duration) *Cache {
	c := newCache(maxEntries, ttl, time.Now)
	go c.cleanupLoop()
	return c
}

func newCache(maxEntries int, ttl time.Duration, now func() time.Time) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        now,
	}
}

// Key derives a cache key from the parts of a request that change the
// rendered HTML.
func Key(req *models.FetchRequest) string {
	h := sha256.New()
	h.Write([]byte(req.URL))
	h.Write([]byte("|"))
	h.Write([]byte(req.Engine))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(req.FastMode)))
	h.Write([]byte("|"))
	h.Write([]byte(req.WaitForSelector))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached response if it is younger than maxAge
// milliseconds. maxAge <= 0 is always a miss.
func (c *Cache) Get(key string, maxAgeMs int) (*models.FetchResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}

	resp := *e.response
	return &resp, true
}

// Set stores a successful response. Failed responses are ignored. At
// capacity an arbitrary entry is evicted.
func (c *Cache) Set(key string, resp *models.FetchResponse) {
	if resp == nil || !resp.Success {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	stored := *resp
	c.store[key] = &entry{response: &stored, createdAt: c.now()}
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.evictExpired()
	}
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
