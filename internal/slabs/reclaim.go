package slabs

import (
	"slices"

	"slabcache/internal/arena"

	"github.com/negrel/assert"
)

// Reclaiming moves a whole page from a donor class to a class that needs one while the arena
// is at its limit. It happens in two steps:
//  1. mark: the page stops serving the donor. Its chunks are pulled off the donor free list,
//     its unused tail is dropped and chunks freed into it later only bring its Used count down.
//  2. commit: once nothing on the page is on loan (or right away with ForceReclaim) the page
//     gets a new generation, is zeroed and carved up again for the recipient.
// Each donor has at most one marked page. Bytes obtained from the OS never change.

// reclaim tries to find dst a page. A marked page only ever goes to the class it was marked
// for, never back to its donor, and dst has at most one page pending at a time: until it
// drains no other donor is marked.
func (s *Allocator) reclaim(dst *slabClass) bool {
	for id := ClassID(1); id <= s.largest; id++ {
		donor := &s.classes[id]
		if donor.reclaim == NO_PAGE || donor.reclaimFor != dst.id { continue }
		if !s.drained(donor) {
			s.log.Debug("Reclaim still pending", "donor", donor.id, "recipient", dst.id,
				"used", s.arena.Page(donor.reclaim).Used)
			return false
		}
		s.commit(donor, dst)
		return true
	}

	donorID, ok := s.policy.SelectDonor(dst.id, s.classInfos())
	if !ok { return false }

	if donorID == NoClass || donorID > s.largest || donorID == dst.id {
		s.log.Warn("Policy picked an invalid donor", "donor", donorID, "recipient", dst.id)
		return false
	}
	donor := &s.classes[donorID]
	if len(donor.pages) == 0 || donor.reclaim != NO_PAGE {
		s.log.Warn("Policy picked an ineligible donor", "donor", donorID, "recipient", dst.id,
			"pages", len(donor.pages), "reclaiming", donor.reclaim != NO_PAGE)
		return false
	}

	s.mark(donor, s.leastUsedPage(donor), dst)
	if s.drained(donor) {
		s.commit(donor, dst)
		return true
	}

	s.log.Debug("Reclaim pending", "donor", donor.id, "page", donor.reclaim,
		"used", s.arena.Page(donor.reclaim).Used, "recipient", dst.id)
	return false
}

func (s *Allocator) drained(donor *slabClass) bool {
	if donor.reclaim == NO_PAGE { return false }
	return s.forceReclaim || s.arena.Page(donor.reclaim).Used == 0
}

// Oldest wins ties.
func (s *Allocator) leastUsedPage(sc *slabClass) uint32 {
	assert.Less(0, len(sc.pages), "no pages to pick from")
	best := sc.pages[0]
	for _, idx := range sc.pages[1:] {
		if s.arena.Page(idx).Used < s.arena.Page(best).Used {
			best = idx
		}
	}
	return best
}

func (s *Allocator) mark(donor *slabClass, idx uint32, dst *slabClass) {
	p := s.arena.Page(idx)
	assert.Equal(ClassID(p.Owner), donor.id, "marking a page of another class")
	assert.Equal(donor.reclaim, NO_PAGE, "donor already has a marked page")

	p.State = arena.PageMarked
	donor.reclaim = idx
	donor.reclaimFor = dst.id

	purged := donor.free.Retain(func(ch Chunk) bool { return ch.page != idx })
	if donor.bumpPage == idx {
		donor.bumpPage = NO_PAGE
		donor.bumpNext = 0
		donor.bumpFree = 0
	}

	s.metrics.marked.Inc(1)
	s.log.Debug("Reclaim mark", "donor", donor.id, "recipient", dst.id, "page", idx, "used", p.Used,
		"purged", purged)
}

func (s *Allocator) commit(donor *slabClass, dst *slabClass) {
	idx := donor.reclaim
	p := s.arena.Page(idx)
	assert.Equal(p.State, arena.PageMarked, "committing an unmarked page")
	assert.Equal(donor.reclaimFor, dst.id, "committing to another class than the page was marked for")

	if p.Used > 0 {
		s.log.Warn("Reclaim forced", "donor", donor.id, "page", idx, "outstanding", p.Used)
	}

	donor.pages = slices.DeleteFunc(donor.pages, func(i uint32) bool { return i == idx })
	donor.reclaim = NO_PAGE
	donor.reclaimFor = NoClass

	p.Gen++
	if p.Gen == 0 { p.Gen = 1 }
	p.Used = 0
	p.Owner = uint8(dst.id)
	p.State = arena.PageReassigned
	clear(p.Data)

	dst.pages = append(dst.pages, idx)
	s.carve(dst, idx)

	s.metrics.committed.Inc(1)
	s.log.Debug("Reclaim commit", "donor", donor.id, "recipient", dst.id, "page", idx, "gen", p.Gen)
}

// PendingDonor returns the class whose marked page is waiting to go to recipient. Freeing
// that class's chunks on the page is what lets it through.
func (s *Allocator) PendingDonor(recipient ClassID) (ClassID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed { return NoClass, false }

	for id := ClassID(1); id <= s.largest; id++ {
		sc := &s.classes[id]
		if sc.reclaim != NO_PAGE && sc.reclaimFor == recipient {
			return id, true
		}
	}
	return NoClass, false
}

// OnMarkedPage reports whether ch sits on a page that is being reclaimed.
func (s *Allocator) OnMarkedPage(ch Chunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.arena.Contains(ch.page) { return false }

	p := s.arena.Page(ch.page)
	return p.Gen == ch.gen && p.State == arena.PageMarked
}
