// Package cache stores evaluated screen components per session.
package cache

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/vburojevic/hotswap/internal/domain"
)

// Metadata describes a cached component
type Metadata struct {
	Name         string
	Path         string
	SourcePath   string
	LastModified time.Time
	Stub         bool
	Err          string
	StoredAt     time.Time
}

// Entry is a cached component with its metadata
type Entry struct {
	Component domain.Component
	Metadata  Metadata
}

// Stats holds hit/miss counters and the current size
type Stats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
	Size   int `json:"size"`
}

type key struct {
	session string
	screen  string
}

// Cache holds at most one entry per (session id, screen id).
// Entries leave only by explicit invalidation.
type Cache struct {
	mu      sync.Mutex
	entries map[key]*Entry
	hits    int
	misses  int
	now     func() time.Time
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		entries: make(map[key]*Entry),
		now:     time.Now,
	}
}

// Get returns the entry for (sessionID, screenID) and counts a hit or miss
func (c *Cache) Get(sessionID, screenID string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key{sessionID, screenID}]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	cp := *e
	return &cp, true
}

// Put stores or replaces the entry for (sessionID, screenID)
func (c *Cache) Put(sessionID, screenID string, component domain.Component, meta Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if meta.StoredAt.IsZero() {
		meta.StoredAt = c.now()
	}
	c.entries[key{sessionID, screenID}] = &Entry{Component: component, Metadata: meta}
}

// Invalidate removes one entry. It reports whether an entry existed.
func (c *Cache) Invalidate(sessionID, screenID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{sessionID, screenID}
	_, ok := c.entries[k]
	delete(c.entries, k)
	return ok
}

// InvalidateSession removes every entry of a session in one pass and returns
// how many were removed.
func (c *Cache) InvalidateSession(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	doomed := lo.Filter(lo.Keys(c.entries), func(k key, _ int) bool {
		return k.session == sessionID
	})
	for _, k := range doomed {
		delete(c.entries, k)
	}
	return len(doomed)
}

// Stats returns the current counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

// Screens returns the cached screen ids of a session
func (c *Cache) Screens(sessionID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return lo.FilterMap(lo.Keys(c.entries), func(k key, _ int) (string, bool) {
		return k.screen, k.session == sessionID
	})
}
