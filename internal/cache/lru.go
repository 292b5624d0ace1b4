// internal/cache/lru.go
//
// Tiny LRU used by the query executor to keep prepared statements warm.
// Evicted entries are handed to OnEvict so the owner can close the
// statement; no external deps, good for a few hundred entries.
package cache

import "container/list"

// LRU is a non-generic least-recently-used cache.  Keys must be
// comparable; values can be any.  Not safe for concurrent use; the
// executor guards it with its own mutex.
type LRU struct {
	cap     int
	ll      *list.List
	dict    map[any]*list.Element
	onEvict func(key, val any)
}

type pair struct {
	key any
	val any
}

// New returns an LRU with the given capacity.  Panics on cap < 1.
// onEvict may be nil.
func New(capacity int, onEvict func(key, val any)) *LRU {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU{
		cap:     capacity,
		ll:      list.New(),
		dict:    make(map[any]*list.Element, capacity),
		onEvict: onEvict,
	}
}

// Get retrieves a value and marks it MRU.
func (c *LRU) Get(key any) (val any, ok bool) {
	if ele, hit := c.dict[key]; hit {
		c.ll.MoveToFront(ele)
		return ele.Value.(pair).val, true
	}
	return nil, false
}

// Add inserts or updates a value, evicting the LRU entry on overflow.
func (c *LRU) Add(key, val any) {
	if ele, hit := c.dict[key]; hit {
		ele.Value = pair{key, val}
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(pair{key, val})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		c.removeElement(c.ll.Back())
	}
}

// Remove drops a single entry, firing OnEvict.  No-op on miss.
func (c *LRU) Remove(key any) {
	if ele, hit := c.dict[key]; hit {
		c.removeElement(ele)
	}
}

// Purge drops every entry, firing OnEvict for each.
func (c *LRU) Purge() {
	for _, ele := range c.dict {
		p := ele.Value.(pair)
		if c.onEvict != nil {
			c.onEvict(p.key, p.val)
		}
	}
	c.ll.Init()
	c.dict = make(map[any]*list.Element, c.cap)
}

// Len reports current size.
func (c *LRU) Len() int { return c.ll.Len() }

func (c *LRU) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	p := ele.Value.(pair)
	delete(c.dict, p.key)
	if c.onEvict != nil {
		c.onEvict(p.key, p.val)
	}
}
