package slabs

import (
	"fmt"
	"math"
	"sort"

	c "slabcache/internal"
	"slabcache/internal/util"
)

type ClassID uint8

// Returned by ClassForSize when nothing is big enough.
const NoClass ClassID = 0

const NO_PAGE = uint32(math.MaxUint32)

// A Chunk names one slot of one page. The zero Chunk is never handed out.
// gen is the page generation at the time the chunk was issued, if the page has been
// reassigned since then the chunk is stale.
type Chunk struct {
	page	uint32
	slot	uint32
	gen	uint32
}

func (ch Chunk) IsZero() bool { return ch.gen == 0 }

func (ch Chunk) String() string {
	return fmt.Sprintf("%d.%d@%d", ch.page, ch.slot, ch.gen)
}

type slabClass struct {
	id		ClassID
	size		int // chunk size
	perSlab		int

	free		util.Stack[Chunk]

	// unused tail of the last page we got, handed out front to back
	bumpPage	uint32
	bumpNext	int
	bumpFree	int

	pages		[]uint32 // owned page indices, oldest first
	rsvdSlabs	int
	reclaim		uint32 // page being taken away from us, NO_PAGE if none
	reclaimFor	ClassID // who gets it
	requested	uint64 // bytes callers asked for, not rounded to size
}

func newClass(id ClassID, size int, perSlab int) slabClass {
	return slabClass{
		id: 		id,
		size: 		size,
		perSlab: 	perSlab,
		free: 		util.CreateStack[Chunk](0),
		bumpPage: 	NO_PAGE,
		reclaim: 	NO_PAGE,
	}
}

// buildClasses derives the chunk sizes. Index 0 is a placeholder for NoClass.
// Sizes grow by factor (at least one alignment step so they strictly increase) until a page
// would hold fewer than MIN_ITEMS_PER_SLAB chunks; the last class is one chunk per page.
func buildClasses(pageSize int, chunkMin int, factor float64) []slabClass {
	classes := make([]slabClass, 1, c.MAX_SLAB_CLASSES+1)
	classes[0] = newClass(NoClass, 0, 0)

	size := c.AlignUp(chunkMin, c.CHUNK_ALIGN)
	for len(classes) < c.MAX_SLAB_CLASSES && size <= pageSize / c.MIN_ITEMS_PER_SLAB {
		classes = append(classes, newClass(ClassID(len(classes)), size, pageSize / size))

		next := int(float64(size) * factor)
		size = c.AlignUp(max(next, size + 1), c.CHUNK_ALIGN)
	}
	classes = append(classes, newClass(ClassID(len(classes)), pageSize, 1))

	return classes
}

func (s *Allocator) classForSize(size int) ClassID {
	if size <= 0 { return NoClass }
	cls := s.classes[1 : s.largest+1]
	i := sort.Search(len(cls), func(i int) bool { return cls[i].size >= size })
	if i == len(cls) { return NoClass }
	return ClassID(i + 1)
}

// ClassForSize returns the smallest class whose chunks fit size, NoClass if none does.
func (s *Allocator) ClassForSize(size int) ClassID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classForSize(size)
}

// SpaceForSize returns how many bytes storing size actually takes, 0 if it can't be stored.
func (s *Allocator) SpaceForSize(size int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.classForSize(size)
	if id == NoClass { return 0 }
	return s.classes[id].size
}

func (s *Allocator) Largest() ClassID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.largest
}

func (s *Allocator) ChunkSize(id ClassID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == NoClass || id > s.largest { return 0 }
	return s.classes[id].size
}
