// Package metacache caches FileMeta by finalized file name so the local
// query path can prune files without opening them. The cache is an
// explicitly owned value injected into persist and the query path; tests
// construct isolated instances.
package metacache

import (
	"container/list"
	"sync"

	"github.com/tracelake/tracelake/columnar"
)

// Strategy selects the eviction order. The set is closed, so dispatch is a
// switch over the tag rather than an interface.
type Strategy int8

const (
	// LRU evicts the least recently read entry.
	LRU Strategy = iota
	// FIFO evicts the least recently written entry.
	FIFO
	// TimeOrdered evicts the entry with the smallest MaxTs, dropping
	// metadata for the oldest data first.
	TimeOrdered
)

// StrategyByName maps a configuration string to a Strategy, defaulting to
// LRU for unknown names.
func StrategyByName(name string) Strategy {
	switch name {
	case "fifo":
		return FIFO
	case "time_ordered":
		return TimeOrdered
	default:
		return LRU
	}
}

type entry struct {
	key  string
	meta columnar.FileMeta
	elem *list.Element
}

// Cache is a bounded, concurrency-safe FileMeta map.
type Cache struct {
	mu       sync.Mutex
	strategy Strategy
	capacity int
	entries  map[string]*entry
	order    *list.List // front = next eviction victim
}

// New builds a cache with the given capacity and eviction strategy.
// A capacity of 0 or below means unbounded.
func New(capacity int, strategy Strategy) *Cache {
	return &Cache{
		strategy: strategy,
		capacity: capacity,
		entries:  map[string]*entry{},
		order:    list.New(),
	}
}

// Set registers or replaces the metadata of a finalized file.
func (c *Cache) Set(name string, meta columnar.FileMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok {
		e.meta = meta
		switch c.strategy {
		case LRU, FIFO:
			c.order.MoveToBack(e.elem)
		case TimeOrdered:
			c.order.Remove(e.elem)
			e.elem = c.insertByMaxTs(e)
		}
		return
	}

	e := &entry{key: name, meta: meta}
	switch c.strategy {
	case LRU, FIFO:
		e.elem = c.order.PushBack(e)
	case TimeOrdered:
		e.elem = c.insertByMaxTs(e)
	}
	c.entries[name] = e

	for c.capacity > 0 && len(c.entries) > c.capacity {
		victim := c.order.Front()
		if victim == nil {
			break
		}
		v := victim.Value.(*entry)
		c.order.Remove(victim)
		delete(c.entries, v.key)
	}
}

// Get returns the metadata of a finalized file.
func (c *Cache) Get(name string) (columnar.FileMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return columnar.FileMeta{}, false
	}
	if c.strategy == LRU {
		c.order.MoveToBack(e.elem)
	}
	return e.meta, true
}

// Delete drops the metadata of a file, typically after the uploader removed
// the local copy.
func (c *Cache) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok {
		c.order.Remove(e.elem)
		delete(c.entries, name)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// insertByMaxTs keeps the order list ascending by MaxTs so the front holds
// the oldest data.
func (c *Cache) insertByMaxTs(e *entry) *list.Element {
	for cur := c.order.Back(); cur != nil; cur = cur.Prev() {
		if cur.Value.(*entry).meta.MaxTs <= e.meta.MaxTs {
			return c.order.InsertAfter(e, cur)
		}
	}
	return c.order.PushFront(e)
}
