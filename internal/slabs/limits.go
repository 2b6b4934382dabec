package slabs

import (
	"fmt"
)

type ShortageLevel int
const (
	ShortageNone ShortageLevel = iota
	// headroom under a tenth of the limit
	ShortageLow
	// not even one more page fits, whatever the free lists hold
	ShortageCritical
)

const SHORTAGE_LOW_DIV = 10

func (l ShortageLevel) String() string {
	switch l {
	case ShortageNone:
		return "none"
	case ShortageLow:
		return "low"
	case ShortageCritical:
		return "critical"
	}
	return fmt.Sprintf("ShortageLevel(%d)", int(l))
}

// SetMemLimit moves the ceiling for future pages. Pages already obtained are kept, so a
// limit below what is in use just stops growth.
func (s *Allocator) SetMemLimit(limit uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed { return ErrClosed }

	err := s.arena.SetLimit(limit)
	if err != nil { return fmt.Errorf("%w: %w", ErrInvalidArg, err) }
	s.log.Info("SetMemLimit", "limit", limit, "malloced", s.arena.Malloced())
	return nil
}

// ShortageLevel tells the eviction side how close the arena is to its limit.
// The allocator itself never evicts anything.
//
// Only arena headroom counts, free chunks don't: they belong to one class and are no help
// to another. So once the arena is full the level stays critical however much sits on
// the free lists, and the store evicts two items per attempt from then on.
func (s *Allocator) ShortageLevel() ShortageLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shortageLevel()
}

func (s *Allocator) shortageLevel() ShortageLevel {
	limit := s.arena.Limit()
	if limit == 0 { return ShortageNone }

	headroom := s.arena.Headroom()
	switch {
	case headroom < uint64(s.arena.PageSize()):
		return ShortageCritical
	case headroom < limit / SHORTAGE_LOW_DIV:
		return ShortageLow
	}
	return ShortageNone
}

// Reserve sets pages aside for class id. The class takes its next pages out of the
// reservation, even when plain growth is already blocked.
func (s *Allocator) Reserve(id ClassID, pages int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.class(id)
	if err != nil { return err }
	if pages <= 0 { return fmt.Errorf("%w: reserving %d pages", ErrInvalidArg, pages) }

	err = s.arena.Reserve(uint64(pages) * uint64(s.arena.PageSize()))
	if err != nil { return fmt.Errorf("%w: %w", ErrNoMemory, err) }

	sc.rsvdSlabs += pages
	s.log.Debug("Reserve", "class", id, "pages", pages, "reserved", s.arena.Reserved())
	return nil
}

// Release gives back pages of a class reservation that the class hasn't used yet.
func (s *Allocator) Release(id ClassID, pages int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.class(id)
	if err != nil { return err }
	if pages <= 0 || pages > sc.rsvdSlabs {
		return fmt.Errorf("%w: releasing %d of %d reserved pages", ErrInvalidArg, pages, sc.rsvdSlabs)
	}

	s.arena.Unreserve(uint64(pages) * uint64(s.arena.PageSize()))
	sc.rsvdSlabs -= pages
	s.log.Debug("Release", "class", id, "pages", pages, "reserved", s.arena.Reserved())
	return nil
}

func (s *Allocator) Malloced() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.Malloced()
}

func (s *Allocator) MemLimit() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.Limit()
}

// Dump renders the page table, for debugging.
func (s *Allocator) Dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.String()
}
