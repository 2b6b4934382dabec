// Package store is a small cache engine on top of the slab allocator: a hashed index of
// items, one LRU per slab class, and eviction when the allocator runs out of memory.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"slabcache/internal/slabs"

	"github.com/cespare/xxhash"
)

var (
	ErrTooLarge	= errors.New("store: item too large")
	ErrBadKey	= errors.New("store: key must be 1-250 bytes")
)

// Allocation attempts on one Set before giving up.
const EVICT_TRIES = 5

type Store struct {
	mu		sync.Mutex
	log		*slog.Logger

	slabs		*slabs.Allocator
	hash		func([]byte) uint64

	index		map[uint64]*entry
	lrus		[]lru // by class id
	count		int

	evictions	uint64
	corrupt		uint64
}

func Create(alloc *slabs.Allocator, log *slog.Logger) *Store {
	if log == nil { log = slog.Default() }

	st := Store {
		log: 	log.With("src", "Store"),
		slabs: 	alloc,
		hash: 	xxhash.Sum64,
		index: 	make(map[uint64]*entry),
		lrus: 	make([]lru, alloc.Largest()+1),
	}
	for i := range st.lrus {
		st.lrus[i].init()
	}
	return &st
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.count
}

func validKey(key []byte) bool {
	return len(key) > 0 && len(key) <= MAX_KEY_LEN
}

// Set stores key, replacing what was there. Least recently used items of the same class
// are evicted to make room. Fails with slabs.ErrNoMemory when nothing more can be evicted.
func (st *Store) Set(key []byte, val []byte, flags uint32) error {
	if !validKey(key) { return ErrBadKey }
	size := itemSize(len(key), len(val))
	id := st.slabs.ClassForSize(size)
	if id == slabs.NoClass { return fmt.Errorf("%w: %d bytes", ErrTooLarge, size) }

	st.mu.Lock()
	defer st.mu.Unlock()

	ch, err := st.alloc(size, id)
	if err != nil { return err }

	raw, err := st.slabs.Bytes(ch, id)
	if err != nil {
		st.slabs.Free(ch, size, id)
		return err
	}
	writeItem(raw, key, val, flags)

	h := st.hash(key)
	if old := st.find(h, key); old != nil {
		st.drop(old)
	}

	e := &entry{hash: h, class: id, chunk: ch, size: size}
	e.hnext = st.index[h]
	st.index[h] = e
	st.lrus[id].pushFront(e)
	st.count++
	return nil
}

func (st *Store) alloc(size int, id slabs.ClassID) (slabs.Chunk, error) {
	for try := 0; ; try++ {
		ch, err := st.slabs.Alloc(size, id)
		if err == nil { return ch, nil }
		if !errors.Is(err, slabs.ErrNoMemory) || try == EVICT_TRIES { return slabs.Chunk{}, err }

		n := 1
		if st.slabs.ShortageLevel() == slabs.ShortageCritical { n = 2 }
		if st.evict(id, n) == 0 && st.drainPending(id) == 0 {
			st.log.Debug("Nothing to evict", "class", id, "size", size)
			return slabs.Chunk{}, err
		}
	}
}

func (st *Store) evict(id slabs.ClassID, n int) int {
	evicted := 0
	for ; evicted < n; evicted++ {
		e := st.lrus[id].back()
		if e == nil { break }
		st.drop(e)
		st.evictions++
	}
	return evicted
}

// drainPending evicts the items still sitting on a page that is being reclaimed for class
// id, so the page can move once they are gone. Used when id has nothing of its own to evict.
func (st *Store) drainPending(id slabs.ClassID) int {
	donor, ok := st.slabs.PendingDonor(id)
	if !ok { return 0 }

	var victims []*entry
	l := &st.lrus[donor]
	for e := l.back(); e != nil; e = l.prev(e) {
		if st.slabs.OnMarkedPage(e.chunk) { victims = append(victims, e) }
	}
	for _, e := range victims {
		st.drop(e)
		st.evictions++
	}
	st.log.Debug("Drained reclaimed page", "donor", donor, "recipient", id, "evicted", len(victims))
	return len(victims)
}

// Get returns a copy of the value. Items that fail their checksum are dropped.
func (st *Store) Get(key []byte) ([]byte, uint32, bool) {
	if !validKey(key) { return nil, 0, false }

	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.find(st.hash(key), key)
	if e == nil { return nil, 0, false }

	it, ok := st.read(e)
	if !ok { return nil, 0, false }

	st.lrus[e.class].touch(e)
	return bytes.Clone(it.Value()), it.Flags(), true
}

func (st *Store) Delete(key []byte) bool {
	if !validKey(key) { return false }

	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.find(st.hash(key), key)
	if e == nil { return false }
	st.drop(e)
	return true
}

// read verifies the item behind e and drops it if it is broken.
func (st *Store) read(e *entry) (item, bool) {
	raw, err := st.slabs.Bytes(e.chunk, e.class)
	if err == nil {
		it := item{raw: raw}
		if it.Verify() { return it, true }
	}
	st.log.Warn("Corrupt item dropped", "class", e.class, "chunk", e.chunk, "err", err)
	st.corrupt++
	st.drop(e)
	return item{}, false
}

func (st *Store) find(h uint64, key []byte) *entry {
	for e := st.index[h]; e != nil; {
		next := e.hnext
		if it, ok := st.read(e); ok && bytes.Equal(it.Key(), key) {
			return e
		}
		e = next
	}
	return nil
}

// drop unlinks e from the index and its lru and gives the chunk back.
func (st *Store) drop(e *entry) {
	if st.index[e.hash] == e {
		if e.hnext == nil {
			delete(st.index, e.hash)
		} else {
			st.index[e.hash] = e.hnext
		}
	} else {
		for p := st.index[e.hash]; p != nil; p = p.hnext {
			if p.hnext == e {
				p.hnext = e.hnext
				break
			}
		}
	}
	e.hnext = nil

	st.lrus[e.class].remove(e)
	st.count--
	st.slabs.Free(e.chunk, e.size, e.class)
}

// Stats reports the allocator stats followed by the store's own.
func (st *Store) Stats(add slabs.AddStat, cookie any) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.slabs.Stats(add, cookie)
	add("curr_items", fmt.Sprintf("%d", st.count), cookie)
	add("evictions", fmt.Sprintf("%d", st.evictions), cookie)
	add("corrupt_items", fmt.Sprintf("%d", st.corrupt), cookie)
}
