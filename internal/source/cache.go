package source

import "sync"

// LookupCache memoizes pageview lookups for the lifetime of one run, so a
// keyword observed from several sources costs one upstream round trip. It
// is owned by the orchestrator and discarded with the run; nothing here is
// a process-wide singleton.
type LookupCache struct {
	mu sync.RWMutex
	m  map[string]*Lookup
}

// NewLookupCache returns an empty run-scoped cache.
func NewLookupCache() *LookupCache {
	return &LookupCache{m: make(map[string]*Lookup)}
}

// Get returns the cached lookup for keyword, if any.
func (c *LookupCache) Get(keyword string) (*Lookup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.m[keyword]
	return l, ok
}

// Put stores the lookup for keyword, overwriting any previous entry.
func (c *LookupCache) Put(keyword string, l *Lookup) {
	c.mu.Lock()
	c.m[keyword] = l
	c.mu.Unlock()
}

// Len reports the number of cached lookups.
func (c *LookupCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
