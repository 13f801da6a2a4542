package recurrence

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/texxasrulez/calendar/event"
)

// Cache memoizes expansion results per event. It is caller-owned: the
// engine never assumes one exists, and callers must invalidate the
// event's entries on every successful write of that event.
type Cache struct {
	entries         map[string]*cacheEntry
	byUID           map[string]map[string]struct{}
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

type cacheEntry struct {
	uid        string
	result     []Occurrence
	expiresAt  time.Time
	accessedAt time.Time
}

// NewCache creates an expansion cache with the given configuration and
// starts its cleanup goroutine. Call Close when done.
func NewCache(config CacheConfig) *Cache {
	c := &Cache{
		entries:         make(map[string]*cacheEntry),
		byUID:           make(map[string]map[string]struct{}),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// cacheKey hashes every input the expansion depends on, so a stale entry
// can never be returned for a modified rule.
func cacheKey(master *event.Event, w Window) string {
	h := sha256.New()

	fmt.Fprint(h, master.UID)
	fmt.Fprint(h, master.Start.Format(time.RFC3339Nano))
	fmt.Fprint(h, master.End.Format(time.RFC3339Nano))
	fmt.Fprint(h, master.AllDay)
	fmt.Fprint(h, w.Start.Format(time.RFC3339Nano))
	fmt.Fprint(h, w.End.Format(time.RFC3339Nano))

	if r := master.Recurrence; r != nil {
		fmt.Fprint(h, r.Frequency, r.Interval, r.Count, r.Until.Format(time.RFC3339Nano))
		fmt.Fprint(h, r.ByDay, r.ByMonth, r.ByMonthDay, r.BySetPos)
		for _, d := range r.ExDates {
			fmt.Fprint(h, d.Format(time.RFC3339Nano))
		}
		for _, d := range r.RDates {
			fmt.Fprint(h, d.Format(time.RFC3339Nano))
		}
		for i := range r.Exceptions {
			ex := &r.Exceptions[i]
			fmt.Fprint(h, ex.Instance, ex.ThisAndFuture, ex.Start.Format(time.RFC3339Nano))
		}
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns a cached expansion if present and not expired.
func (c *Cache) Get(master *event.Event, w Window) ([]Occurrence, bool) {
	key := cacheKey(master, w)

	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		c.mutex.Lock()
		c.remove(key)
		c.mutex.Unlock()
		return nil, false
	}

	c.mutex.Lock()
	entry.accessedAt = now
	c.mutex.Unlock()

	return entry.result, true
}

// Set stores an expansion result.
func (c *Cache) Set(master *event.Event, w Window, result []Occurrence) {
	key := cacheKey(master, w)
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = &cacheEntry{
		uid:        master.UID,
		result:     result,
		expiresAt:  now.Add(c.ttl),
		accessedAt: now,
	}
	if c.byUID[master.UID] == nil {
		c.byUID[master.UID] = make(map[string]struct{})
	}
	c.byUID[master.UID][key] = struct{}{}

	if len(c.entries) > c.maxEntries {
		c.cleanup()
	}
}

// Invalidate drops every cached expansion of the given event. Callers
// invoke it after each successful write.
func (c *Cache) Invalidate(uid string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key := range c.byUID[uid] {
		delete(c.entries, key)
	}
	delete(c.byUID, uid)
}

// remove must be called with the write lock held.
func (c *Cache) remove(key string) {
	if entry, ok := c.entries[key]; ok {
		delete(c.entries, key)
		if keys, ok := c.byUID[entry.uid]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byUID, entry.uid)
			}
		}
	}
}

// cleanup removes expired entries, then the least recently accessed ones
// if still over the limit. Must be called with the write lock held.
func (c *Cache) cleanup() {
	now := time.Now()

	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			c.remove(key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyAccess struct {
		key        string
		accessedAt time.Time
	}
	keys := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		keys = append(keys, keyAccess{key, entry.accessedAt})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].accessedAt.Before(keys[j].accessedAt) })

	for i := 0; i < len(keys) && len(c.entries) > c.maxEntries; i++ {
		c.remove(keys[i].key)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache.
func (c *Cache) Close() {
	close(c.stopCleanup)
	c.mutex.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.byUID = make(map[string]map[string]struct{})
	c.mutex.Unlock()
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	expired := 0
	now := time.Now()
	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			expired++
		}
	}

	return CacheStats{
		TotalEntries:   len(c.entries),
		ExpiredEntries: expired,
		ActiveEntries:  len(c.entries) - expired,
	}
}

// CacheStats provides information about cache contents.
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
