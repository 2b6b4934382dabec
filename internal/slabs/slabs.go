// Package slabs is the memory allocator under the cache. Items live in fixed size chunks
// carved out of large slab pages; chunk sizes come in classes spaced by a growth factor.
// Every operation runs under one mutex, including the ones that move a page from one
// class to another.
//
// Allocation falls back in this order: the class free list (most recently freed first),
// the unused tail of the class's newest page, a fresh page from the arena, a page
// reclaimed from another class, and finally ErrNoMemory. Running out of memory is normal,
// callers are expected to evict something and try again.
package slabs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	c "slabcache/internal"
	"slabcache/internal/arena"

	"github.com/negrel/assert"
	"github.com/rcrowley/go-metrics"
)

var (
	ErrNoMemory		= errors.New("slabs: out of memory")
	ErrInvalidClass		= errors.New("slabs: invalid class id")
	ErrStaleChunk		= errors.New("slabs: chunk belongs to a reassigned page")
	ErrInvalidFactor	= errors.New("slabs: growth factor must be > 1.0")
	ErrInvalidChunkMin	= errors.New("slabs: min chunk size must fit in a page")
	ErrInvalidArg		= errors.New("slabs: invalid argument")
	ErrInit			= errors.New("slabs: init failed")
	ErrClosed		= errors.New("slabs: closed")
)

type Options struct {
	Limit		uint64 // bytes, 0 = unlimited
	Factor		float64 // 0 = DEFAULT_FACTOR
	Prealloc	bool // grab Limit bytes up front instead of one page at a time
	PageSize	int // 0 = SLAB_PAGE_SIZE
	ChunkMin	int // 0 = CHUNK_SIZE_MIN
	Reserved	uint64 // kept free under Limit for someone else

	Policy		DonorPolicy // nil = MostFreePolicy{}
	// Commit reclamations right away even when chunks of the page are still on loan.
	// Those chunks turn stale: Bytes fails on them and freeing them is a no-op.
	ForceReclaim	bool

	Log		*slog.Logger
	Metrics		metrics.Registry
}

func (o Options) withDefaults() Options {
	if o.Factor == 0 { o.Factor = c.DEFAULT_FACTOR }
	if o.PageSize == 0 { o.PageSize = c.SLAB_PAGE_SIZE }
	if o.ChunkMin == 0 { o.ChunkMin = c.CHUNK_SIZE_MIN }
	if o.Policy == nil { o.Policy = MostFreePolicy{} }
	if o.Log == nil { o.Log = slog.Default() }
	if o.Metrics == nil { o.Metrics = metrics.NewRegistry() }
	return o
}

type Allocator struct {
	mu		sync.Mutex
	log		*slog.Logger

	arena		*arena.Arena
	classes		[]slabClass // [0] unused
	largest		ClassID

	policy		DonorPolicy
	forceReclaim	bool

	metrics		allocMetrics
	closed		bool
}

func Create(opts Options) (*Allocator, error) {
	opts = opts.withDefaults()
	log := opts.Log.With("src", "Slabs")

	if !(opts.Factor > 1.0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFactor, opts.Factor)
	}
	if opts.PageSize < 0 || opts.ChunkMin < 0 || opts.ChunkMin > opts.PageSize {
		return nil, fmt.Errorf("%w: chunk %d page %d", ErrInvalidChunkMin, opts.ChunkMin, opts.PageSize)
	}

	ar, err := arena.Create(opts.Limit, opts.PageSize, opts.Prealloc, opts.Log)
	if err != nil { return nil, fmt.Errorf("%w: %w", ErrInit, err) }

	if opts.Reserved > 0 {
		err = ar.Reserve(opts.Reserved)
		if err != nil {
			ar.Close()
			return nil, fmt.Errorf("%w: %w", ErrInit, err)
		}
	}

	classes := buildClasses(opts.PageSize, opts.ChunkMin, opts.Factor)
	for i := 1; i < len(classes); i++ {
		log.Debug("Class", "id", i, "chunk", classes[i].size, "perslab", classes[i].perSlab)
	}

	s := Allocator {
		log: 		log,
		arena: 		ar,
		classes: 	classes,
		largest: 	ClassID(len(classes) - 1),
		policy: 	opts.Policy,
		forceReclaim: 	opts.ForceReclaim,
		metrics: 	registerMetrics(opts.Metrics),
	}
	log.Info("Created", "limit", opts.Limit, "factor", opts.Factor, "prealloc", opts.Prealloc,
		"classes", s.largest, "pagesize", opts.PageSize)

	return &s, nil
}

// Close gives every page back to the OS. Chunks handed out before are invalid afterwards.
func (s *Allocator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed { return nil }
	s.closed = true
	return s.arena.Close()
}

func (s *Allocator) class(id ClassID) (*slabClass, error) {
	if s.closed { return nil, ErrClosed }
	if id == NoClass || id > s.largest { return nil, ErrInvalidClass }
	return &s.classes[id], nil
}

// Alloc hands out a chunk of class id for an item of size bytes. ErrNoMemory means the
// class is out of chunks and no page could be found for it.
func (s *Allocator) Alloc(size int, id ClassID) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.class(id)
	if err != nil { return Chunk{}, err }
	assert.LessOrEqual(size, sc.size, "size doesn't fit the class")

	ch, ok := s.alloc(sc)
	if !ok {
		s.metrics.allocFailed.Inc(1)
		return Chunk{}, ErrNoMemory
	}

	sc.requested += uint64(size)
	s.metrics.alloc.Inc(1)
	return ch, nil
}

func (s *Allocator) alloc(sc *slabClass) (Chunk, bool) {
	if ch, ok := sc.free.Pop(); ok {
		p := s.arena.Page(ch.page)
		assert.Equal(p.Gen, ch.gen, "stale chunk on the free list")
		assert.Equal(p.State != arena.PageMarked, true, "free list chunk on a marked page")
		p.Used++
		return ch, true
	}

	if sc.bumpFree == 0 && !s.grow(sc) && !s.reclaim(sc) {
		return Chunk{}, false
	}
	return s.bump(sc), true
}

func (s *Allocator) bump(sc *slabClass) Chunk {
	assert.Less(0, sc.bumpFree, "bump on an exhausted page")
	p := s.arena.Page(sc.bumpPage)
	ch := Chunk{
		page: 	sc.bumpPage,
		slot: 	uint32(sc.bumpNext),
		gen: 	p.Gen,
	}
	sc.bumpNext++
	sc.bumpFree--
	p.Used++
	return ch
}

// A class that holds a reservation pays for the page out of it.
func (s *Allocator) grow(sc *slabClass) bool {
	useRsvd := sc.rsvdSlabs > 0
	idx, err := s.arena.Grow(useRsvd)
	if err != nil {
		if !errors.Is(err, arena.ErrLimit) && !errors.Is(err, arena.ErrExhausted) {
			s.log.Error("Grow", "class", sc.id, "err", err)
		}
		return false
	}
	if useRsvd { sc.rsvdSlabs-- }

	s.arena.Page(idx).Owner = uint8(sc.id)
	sc.pages = append(sc.pages, idx)
	s.carve(sc, idx)
	s.metrics.grow.Inc(1)
	return true
}

func (s *Allocator) carve(sc *slabClass, idx uint32) {
	sc.bumpPage = idx
	sc.bumpNext = 0
	sc.bumpFree = sc.perSlab
}

// Free puts ch back on the free list of its class. size must be what was passed to Alloc.
// Chunks from a page that has been reassigned since are dropped.
func (s *Allocator) Free(ch Chunk, size int, id ClassID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.class(id)
	if err != nil {
		assert.Equal(err, ErrClosed, "free to an invalid class")
		return
	}
	assert.LessOrEqual(uint64(size), sc.requested, "requested bytes underflow")
	sc.requested -= min(uint64(size), sc.requested)
	s.metrics.free.Inc(1)

	p := s.arena.Page(ch.page)
	if p.Gen != ch.gen {
		s.metrics.staleFree.Inc(1)
		s.log.Warn("Free of stale chunk", "class", id, "chunk", ch, "gen", p.Gen)
		return
	}
	assert.Equal(ClassID(p.Owner), id, "chunk freed to the wrong class")
	assert.Less(int(ch.slot), sc.perSlab, "slot out of range")
	assert.Less(0, p.Used, "double free")
	p.Used--

	// marked pages just drain, their chunks are never reused by this class
	if p.State == arena.PageMarked { return }
	sc.free.Push(ch)
}

// Bytes returns the memory behind ch, exactly one chunk long.
func (s *Allocator) Bytes(ch Chunk, id ClassID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.class(id)
	if err != nil { return nil, err }
	if ch.IsZero() || !s.arena.Contains(ch.page) { return nil, ErrStaleChunk }

	p := s.arena.Page(ch.page)
	if p.Gen != ch.gen { return nil, ErrStaleChunk }
	if ClassID(p.Owner) != id { return nil, fmt.Errorf("%w: chunk %v is class %d", ErrInvalidClass, ch, p.Owner) }

	off := int(ch.slot) * sc.size
	return p.Data[off : off+sc.size : off+sc.size], nil
}

// AdjustRequested fixes up requested bytes when an item changes size in place.
func (s *Allocator) AdjustRequested(id ClassID, old int, ntotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.class(id)
	if err != nil { return }
	assert.LessOrEqual(uint64(old), sc.requested, "requested bytes underflow")
	sc.requested = sc.requested - min(uint64(old), sc.requested) + uint64(ntotal)
}
