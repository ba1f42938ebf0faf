package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a bounded in-process cache. Entries also expire after ttl when
// ttl is positive. A non-positive capacity disables storage entirely.
type LRUCache struct {
	capacity int
	ttl      time.Duration
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.Mutex
	now      func() time.Time
}

type entry struct {
	key       string
	value     string
	expiresAt time.Time
}

func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
		now:      time.Now,
	}
}

func (c *LRUCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.cache[key]
	if !found {
		return "", false
	}

	e := elem.Value.(*entry)
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.removeElement(elem)
		return "", false
	}

	c.lruList.MoveToFront(elem)
	return e.value, true
}

func (c *LRUCache) Set(key string, value string) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if elem, found := c.cache[key]; found {
		c.lruList.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		return
	}

	elem := c.lruList.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.cache[key] = elem

	if c.lruList.Len() > c.capacity {
		if oldest := c.lruList.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.cache[key]; found {
		c.removeElement(elem)
	}
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.cache, elem.Value.(*entry).key)
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.lruList = list.New()
}
