package nfc

import (
	"sync"
	"time"
)

// DefaultPresenceWindow is how long a tag counts as still on the reader
// after it was last read.
const DefaultPresenceWindow = 2 * time.Second

// TagCache remembers what was last read from each tag so repeated reads of
// a tag left on the reader can be told apart from new scans.
type TagCache struct {
	lastSeen map[string]cacheEntry // map[UID]entry
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

type cacheEntry struct {
	text string
	at   time.Time
}

// NewTagCache creates a cache that treats a tag read again within window
// as still present.
func NewTagCache(window time.Duration) *TagCache {
	return &TagCache{
		lastSeen: make(map[string]cacheEntry),
		window:   window,
		now:      time.Now,
	}
}

// HasChanged records a read of uid showing text and reports whether it is
// news: a different tag, different content, or the same tag placed again
// after the presence window ran out. Tags not seen within the window are
// forgotten.
func (c *TagCache) HasChanged(uid, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, entry := range c.lastSeen {
		if now.Sub(entry.at) >= c.window {
			delete(c.lastSeen, id)
		}
	}

	prev, present := c.lastSeen[uid]
	c.lastSeen[uid] = cacheEntry{text: text, at: now}
	return !present || prev.text != text
}

func (c *TagCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lastSeen)
}
