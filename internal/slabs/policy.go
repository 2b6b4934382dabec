package slabs

import (
	"slabcache/internal/util"
)

// What a DonorPolicy gets to see about a class.
type ClassInfo struct {
	ID		ClassID
	ChunkSize	int
	PerSlab		int
	Pages		int
	ReservedPages	int
	UsedChunks	int
	FreeChunks	int // free list plus the unused tail, marked pages don't count
	Requested	uint64
	Reclaiming	bool // has a marked page already
	ReclaimFor	ClassID // class the marked page goes to, NoClass if none
}

func (ci ClassInfo) TotalChunks() int {
	return ci.Pages * ci.PerSlab
}

func (ci ClassInfo) FreeRatio() float64 {
	if ci.TotalChunks() == 0 { return 0 }
	return float64(ci.FreeChunks) / float64(ci.TotalChunks())
}

// A DonorPolicy decides which class gives up a page when recipient needs one and the arena
// is full. It is only ever called with the allocator lock held.
type DonorPolicy interface {
	SelectDonor(recipient ClassID, classes []ClassInfo) (ClassID, bool)
}

type PolicyFunc func(recipient ClassID, classes []ClassInfo) (ClassID, bool)

func (f PolicyFunc) SelectDonor(recipient ClassID, classes []ClassInfo) (ClassID, bool) {
	return f(recipient, classes)
}

var NeverReclaim DonorPolicy = PolicyFunc(func(ClassID, []ClassInfo) (ClassID, bool) {
	return NoClass, false
})

// Eligible reports whether ci can donate a page to recipient at all.
func Eligible(recipient ClassID, ci ClassInfo, minPages int) bool {
	return ci.ID != recipient && !ci.Reclaiming && ci.Pages >= max(minPages, 1)
}

// MostFreePolicy picks the class with the largest share of free chunks. Classes with
// nothing free are never picked.
type MostFreePolicy struct {
	MinFreeRatio	float64
	MinPages	int
}

func (p MostFreePolicy) SelectDonor(recipient ClassID, classes []ClassInfo) (ClassID, bool) {
	best, bestRatio := NoClass, 0.0
	for _, ci := range classes {
		if !Eligible(recipient, ci, p.MinPages) { continue }
		r := ci.FreeRatio()
		if r <= 0 || r < p.MinFreeRatio || r <= bestRatio { continue }
		best, bestRatio = ci.ID, r
	}
	return best, best != NoClass
}

// HashedPolicy spreads reclamation over every class with free chunks instead of always
// draining the emptiest one.
type HashedPolicy struct {
	Seed	uint64
	seq	uint64
}

func (p *HashedPolicy) SelectDonor(recipient ClassID, classes []ClassInfo) (ClassID, bool) {
	var cands []ClassID
	for _, ci := range classes {
		if Eligible(recipient, ci, 1) && ci.FreeChunks > 0 {
			cands = append(cands, ci.ID)
		}
	}
	if len(cands) == 0 { return NoClass, false }
	p.seq++
	return cands[util.Hash(p.Seed ^ p.seq) % uint64(len(cands))], true
}

func (s *Allocator) classInfo(sc *slabClass) ClassInfo {
	used := 0
	for _, idx := range sc.pages {
		used += s.arena.Page(idx).Used
	}
	return ClassInfo{
		ID: 		sc.id,
		ChunkSize: 	sc.size,
		PerSlab: 	sc.perSlab,
		Pages: 		len(sc.pages),
		ReservedPages: 	sc.rsvdSlabs,
		UsedChunks: 	used,
		FreeChunks: 	sc.free.Len() + sc.bumpFree,
		Requested: 	sc.requested,
		Reclaiming: 	sc.reclaim != NO_PAGE,
		ReclaimFor: 	sc.reclaimFor,
	}
}

func (s *Allocator) classInfos() []ClassInfo {
	infos := make([]ClassInfo, 0, s.largest)
	for id := ClassID(1); id <= s.largest; id++ {
		infos = append(infos, s.classInfo(&s.classes[id]))
	}
	return infos
}

// Classes returns a snapshot of every class, ordered by id.
func (s *Allocator) Classes() []ClassInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classInfos()
}
