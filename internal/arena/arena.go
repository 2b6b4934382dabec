// Package arena owns every byte the slab allocator hands out. Memory comes from the OS one
// slab page at a time, or is carved out of a single buffer grabbed up front, and is tracked
// against a byte limit and a reserved set-aside. Pages are never given back before Close;
// they only change owners.
//
// Arena is not safe for concurrent use, the slab allocator serializes access to it.
package arena

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"slabcache/internal/system"

	"github.com/negrel/assert"
)

var (
	ErrLimit		= errors.New("arena: memory limit reached")
	ErrExhausted		= errors.New("arena: preallocated memory exhausted")
	ErrSystem		= errors.New("arena: couldn't obtain memory from the OS")
	ErrPreallocLimit	= errors.New("arena: preallocation needs a memory limit")
	ErrLimitTooLarge	= errors.New("arena: limit exceeds preallocated memory")
	ErrBelowReserved	= errors.New("arena: limit below reserved memory")
	ErrInvalidPageSize	= errors.New("arena: page size must be positive")
	ErrClosed		= errors.New("arena: closed")
)

type PageState uint8
const (
	PageActive PageState = iota
	// no new chunks may be handed out from it, waiting for its loans to come back
	PageMarked
	// moved to another class at least once, otherwise the same as active
	PageReassigned
)

func (s PageState) String() string {
	switch s {
	case PageActive:
		return "active"
	case PageMarked:
		return "marked"
	case PageReassigned:
		return "reassigned"
	}
	return fmt.Sprintf("PageState(%d)", uint8(s))
}

// A Page is one slab, carved into equal chunks by whichever class owns it.
// Gen changes every time the page changes owners, so chunk handles from a previous
// owner can be told apart from live ones.
type Page struct {
	Data	[]byte
	Owner	uint8
	State	PageState
	Gen	uint32
	Used	int // chunks currently on loan
}

type Arena struct {
	log		*slog.Logger

	pageSize	int
	limit		uint64 // 0 = unlimited
	malloced	uint64
	reserved	uint64

	// prealloc mode: pages are carved from base by advancing cursor
	base		[]byte
	cursor		int

	slabs		[][]byte // individually mapped pages, to free later
	pages		[]Page
	closed		bool
}

func Create(limit uint64, pageSize int, prealloc bool, log *slog.Logger) (*Arena, error) {
	if log == nil { log = slog.Default() }
	log = log.With("src", "Arena")

	if pageSize <= 0 { return nil, ErrInvalidPageSize }

	a := Arena {
		log: 		log,
		pageSize: 	pageSize,
		limit: 		limit,
	}

	if prealloc {
		if limit == 0 { return nil, ErrPreallocLimit }
		if limit > math.MaxInt { return nil, ErrLimitTooLarge }
		base, err := system.AllocSlab(int(limit))
		if err != nil { return nil, fmt.Errorf("%w: preallocating %d bytes: %w", ErrSystem, limit, err) }
		a.base = base
		log.Debug("Preallocated", "bytes", len(base), "pages", len(base) / pageSize)
	}

	return &a, nil
}

func (a *Arena) Close() error {
	if a.closed { return nil }
	a.closed = true

	var errs []error
	if a.base != nil {
		errs = append(errs, system.DeallocSlab(a.base))
	}
	for _, slab := range a.slabs {
		errs = append(errs, system.DeallocSlab(slab))
	}
	a.log.Debug("Closed", "pages", len(a.pages), "bytes", a.malloced)

	a.base = nil
	a.slabs = nil
	a.pages = nil
	return errors.Join(errs...)
}

func (a *Arena) PageSize() int 		{ return a.pageSize }
func (a *Arena) Limit() uint64 		{ return a.limit }
func (a *Arena) Malloced() uint64 	{ return a.malloced }
func (a *Arena) Reserved() uint64 	{ return a.reserved }
func (a *Arena) Prealloc() bool 	{ return a.base != nil }
func (a *Arena) PageCount() int 	{ return len(a.pages) }

// Bytes a grow could still claim without touching reservations.
func (a *Arena) Headroom() uint64 {
	if a.limit == 0 { return math.MaxUint64 }
	used := a.malloced + a.reserved
	if used >= a.limit { return 0 }
	return a.limit - used
}

// Only moves the ceiling, pages already obtained stay. In prealloc mode the ceiling can't
// go past the buffer, there is nothing to grow into.
func (a *Arena) SetLimit(limit uint64) error {
	if a.base != nil && (limit == 0 || limit > uint64(len(a.base))) {
		return fmt.Errorf("%w: %d > %d", ErrLimitTooLarge, limit, len(a.base))
	}
	if limit != 0 && limit < a.reserved {
		return fmt.Errorf("%w: %d < %d", ErrBelowReserved, limit, a.reserved)
	}
	a.log.Debug("SetLimit", "old", a.limit, "new", limit, "malloced", a.malloced)
	a.limit = limit
	return nil
}

// Sets bytes aside under the limit so plain grows can't claim them.
func (a *Arena) Reserve(bytes uint64) error {
	if a.limit != 0 && a.Headroom() < bytes {
		return fmt.Errorf("%w: reserving %d bytes with %d left", ErrLimit, bytes, a.Headroom())
	}
	a.reserved += bytes
	return nil
}

func (a *Arena) Unreserve(bytes uint64) {
	assert.LessOrEqual(bytes, a.reserved, "unreserving more than reserved")
	a.reserved -= min(bytes, a.reserved)
}

// Grow obtains one more page and returns its index in the page table. With useReserved the
// page is paid for out of the reserved bytes (the caller owns a page sized reservation),
// otherwise it has to fit under the limit next to everything reserved.
func (a *Arena) Grow(useReserved bool) (uint32, error) {
	if a.closed { return 0, ErrClosed }
	size := uint64(a.pageSize)

	if useReserved {
		assert.GreaterOrEqual(a.reserved, size, "grow from reservation without one")
		if a.reserved < size { return 0, ErrLimit }
		// a lowered limit blocks reserved pages too
		if a.limit != 0 && a.malloced + size > a.limit { return 0, ErrLimit }
	} else if a.Headroom() < size {
		return 0, ErrLimit
	}

	var data []byte
	if a.base != nil {
		if a.cursor + a.pageSize > len(a.base) { return 0, ErrExhausted }
		data = a.base[a.cursor : a.cursor + a.pageSize : a.cursor + a.pageSize]
		a.cursor += a.pageSize
	} else {
		slab, err := system.AllocSlab(a.pageSize)
		if err != nil { return 0, fmt.Errorf("%w: %w", ErrSystem, err) }
		a.slabs = append(a.slabs, slab)
		data = slab
	}

	if useReserved {
		a.reserved -= size
	}
	a.malloced += size
	assert.Equal(a.limit == 0 || a.malloced <= a.limit, true, "malloced over limit")

	a.pages = append(a.pages, Page{
		Data: 	data,
		State: 	PageActive,
		Gen: 	1,
	})
	idx := uint32(len(a.pages) - 1)
	a.log.Debug("Grow", "page", idx, "malloced", a.malloced, "limit", a.limit, "reserved", useReserved)
	return idx, nil
}

// The pointer stays valid until the next Grow.
func (a *Arena) Page(idx uint32) *Page {
	assert.Less(int(idx), len(a.pages), "page index out of range")
	return &a.pages[idx]
}

func (a *Arena) Contains(idx uint32) bool {
	return int(idx) < len(a.pages)
}
