package slabs

import (
	"fmt"
	"strconv"

	"github.com/rcrowley/go-metrics"
)

// AddStat receives one formatted stat. cookie is whatever the caller passed to Stats.
type AddStat func(key string, val string, cookie any)

// prefix < 0 means no "<prefix>:" in front of the key
func addStatistics(add AddStat, cookie any, prefix int, key string, format string, args ...any) {
	name := key
	if prefix >= 0 {
		name = strconv.Itoa(prefix) + ":" + key
	}
	add(name, fmt.Sprintf(format, args...), cookie)
}

// Stats reports every class that owns or has reserved pages, then the totals.
func (s *Allocator) Stats(add AddStat, cookie any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed { return }

	active := 0
	for id := ClassID(1); id <= s.largest; id++ {
		sc := &s.classes[id]
		if len(sc.pages) == 0 && sc.rsvdSlabs == 0 { continue }
		active++

		ci := s.classInfo(sc)
		n := int(id)
		addStatistics(add, cookie, n, "chunk_size", "%d", sc.size)
		addStatistics(add, cookie, n, "chunks_per_page", "%d", sc.perSlab)
		addStatistics(add, cookie, n, "total_pages", "%d", len(sc.pages))
		addStatistics(add, cookie, n, "total_chunks", "%d", ci.TotalChunks())
		addStatistics(add, cookie, n, "used_chunks", "%d", ci.UsedChunks)
		addStatistics(add, cookie, n, "free_chunks", "%d", sc.free.Len())
		addStatistics(add, cookie, n, "free_chunks_end", "%d", sc.bumpFree)
		addStatistics(add, cookie, n, "mem_requested", "%d", sc.requested)
		addStatistics(add, cookie, n, "rsvd_pages", "%d", sc.rsvdSlabs)
		if sc.reclaim != NO_PAGE {
			addStatistics(add, cookie, n, "reclaiming", "%d->%d", sc.reclaim, sc.reclaimFor)
		} else {
			addStatistics(add, cookie, n, "reclaiming", "none")
		}
	}

	addStatistics(add, cookie, -1, "active_slabs", "%d", active)
	addStatistics(add, cookie, -1, "total_malloced", "%d", s.arena.Malloced())
	addStatistics(add, cookie, -1, "mem_limit", "%d", s.arena.Limit())
	addStatistics(add, cookie, -1, "mem_reserved", "%d", s.arena.Reserved())
	addStatistics(add, cookie, -1, "arena_pages", "%d", s.arena.PageCount())
	addStatistics(add, cookie, -1, "prealloc", "%t", s.arena.Prealloc())
	addStatistics(add, cookie, -1, "shortage_level", "%s", s.shortageLevel())
	s.metrics.each(func(name string, cnt metrics.Counter) {
		addStatistics(add, cookie, -1, name, "%d", cnt.Count())
	})
}
