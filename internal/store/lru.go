package store

import (
	"slabcache/internal/slabs"
)

type entry struct {
	hash	uint64
	class	slabs.ClassID
	chunk	slabs.Chunk
	size	int // item size, what the allocator was asked for

	hnext	*entry // hash chain
	prev	*entry
	next	*entry
}

// One lru per class, eviction only ever needs to free a chunk of the same size.
// Fake nodes so nothing needs nil checks:
// head <-> most recent <-> ... <-> least recent <-> tail
type lru struct {
	head	entry
	tail	entry
	len	int
}

func (l *lru) init() {
	l.head.next = &l.tail
	l.tail.prev = &l.head
	l.len = 0
}

func (l *lru) pushFront(e *entry) {
	e.prev = &l.head
	e.next = l.head.next
	l.head.next.prev = e
	l.head.next = e
	l.len++
}

func (l *lru) remove(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
	l.len--
}

func (l *lru) touch(e *entry) {
	l.remove(e)
	l.pushFront(e)
}

// Least recently used, nil when empty.
func (l *lru) back() *entry {
	if l.tail.prev == &l.head { return nil }
	return l.tail.prev
}

// Next more recently used entry, nil at the front.
func (l *lru) prev(e *entry) *entry {
	if e.prev == &l.head { return nil }
	return e.prev
}
