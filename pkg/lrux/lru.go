// Package lrux implements least-recently-used replacement for a fixed
// number of slots. It tracks only integer slot ids; the caller decides
// what a slot means (the buffer pool uses frame indices).
package lrux

import (
	"container/list"
	"sync"
)

// LRU keeps an ordered set of evictable slot ids. The front of the list is
// the most recently released slot, the back is the next victim. All
// operations are O(1) and guarded by one mutex.
type LRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[int]*list.Element
}

func New(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[int]*list.Element, capacity),
	}
}

func (l *LRU) Capacity() int { return l.capacity }

// Unpin marks a slot evictable, inserting it at the most-recently-used
// end. Idempotent: a slot already tracked keeps its position.
func (l *LRU) Unpin(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.items[id]; ok {
		return
	}
	if l.order.Len() >= l.capacity {
		// The pool never unpins more distinct slots than it has frames.
		return
	}
	l.items[id] = l.order.PushFront(id)
}

// Pin removes a slot from eviction eligibility. No-op if absent.
func (l *LRU) Pin(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.items[id]; ok {
		l.order.Remove(e)
		delete(l.items, id)
	}
}

// Victim removes and returns the least-recently-used slot. ok is false
// when nothing is evictable.
func (l *LRU) Victim() (id int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.order.Back()
	if e == nil {
		return -1, false
	}
	id = e.Value.(int)
	l.order.Remove(e)
	delete(l.items, id)
	return id, true
}

// Size reports how many slots are currently evictable.
func (l *LRU) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
