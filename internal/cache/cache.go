package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded in-memory LRU store shared across sessions (screenshot
// artifacts, intermediate fetch results). It enforces two independent caps:
// total byte size and total item count. Insertions evict least-recently-used
// entries until the new entry fits; an entry larger than the byte cap on its
// own is rejected outright. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	maxItems int
	ttl      time.Duration

	curBytes int64
	order    *list.List // front = most recently used
	entries  map[string]*list.Element

	now     func() time.Time // overridable in tests
	onEvict func(key string)
}

// SetOnEvict installs a hook called (with the lock held) for every entry
// removed to make room. Used to feed the eviction metric.
func (c *Cache) SetOnEvict(fn func(key string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

type entry struct {
	key      string
	data     []byte
	accessed time.Time
}

// New creates a cache with the given caps. ttl <= 0 disables expiry.
func New(maxBytes int64, maxItems int, ttl time.Duration) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		maxItems: maxItems,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the stored bytes and true, or nil and false on a miss.
// Expired entries count as misses and are removed.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(e.accessed) > c.ttl {
		c.removeLocked(el)
		return nil, false
	}
	e.accessed = c.now()
	c.order.MoveToFront(el)
	return e.data, true
}

// Put stores data under key, evicting LRU entries as needed. It returns
// false if the entry alone exceeds the byte cap and was not stored.
func (c *Cache) Put(key string, data []byte) bool {
	size := int64(len(data))
	if size > c.maxBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}

	for c.curBytes+size > c.maxBytes || c.order.Len() >= c.maxItems {
		back := c.order.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*entry).key
		c.removeLocked(back)
		if c.onEvict != nil {
			c.onEvict(victim)
		}
	}

	el := c.order.PushFront(&entry{key: key, data: data, accessed: c.now()})
	c.entries[key] = el
	c.curBytes += size
	return true
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the current item count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Bytes returns the current total payload size.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
	c.curBytes -= int64(len(e.data))
}
