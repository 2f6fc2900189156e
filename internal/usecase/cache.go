package usecase

import (
	"strings"
	"sync"
)

// ResponseCache is a small insertion-order cache keyed by normalized query
// text. Eviction drops the oldest entry once the cap is reached; true LRU
// is not needed at this size.
type ResponseCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]cachedAnswer
	order   []string
}

// cachedAnswer keeps the tier that produced the text alongside it, so a
// hit reports the provenance of the answer rather than the tool source's
// availability at hit time.
type cachedAnswer struct {
	text string
	live bool
}

// NewResponseCache creates a cache holding at most max entries.
func NewResponseCache(max int) *ResponseCache {
	if max <= 0 {
		max = 10
	}
	return &ResponseCache{
		max:     max,
		entries: make(map[string]cachedAnswer, max),
	}
}

// normalizeQuery folds case and whitespace so trivially rephrased queries
// share a cache slot.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Get returns the cached response for query, if present, and whether the
// live tier produced it.
func (c *ResponseCache) Get(query string) (text string, live bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[normalizeQuery(query)]
	return v.text, v.live, ok
}

// Put stores a response and its producing tier for query, evicting the
// oldest entry when full.
func (c *ResponseCache) Put(query, response string, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := normalizeQuery(query)
	if _, exists := c.entries[key]; exists {
		c.entries[key] = cachedAnswer{text: response, live: live}
		return
	}

	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = cachedAnswer{text: response, live: live}
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedAnswer, c.max)
	c.order = nil
}
