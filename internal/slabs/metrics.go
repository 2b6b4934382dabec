package slabs

import (
	"github.com/rcrowley/go-metrics"
)

type allocMetrics struct {
	alloc		metrics.Counter
	allocFailed	metrics.Counter
	free		metrics.Counter
	staleFree	metrics.Counter
	grow		metrics.Counter
	marked		metrics.Counter
	committed	metrics.Counter
}

// Counters are shared between allocators registered on the same registry.
func registerMetrics(r metrics.Registry) allocMetrics {
	return allocMetrics{
		alloc: 		metrics.GetOrRegisterCounter("slabs.alloc", r),
		allocFailed: 	metrics.GetOrRegisterCounter("slabs.alloc_failed", r),
		free: 		metrics.GetOrRegisterCounter("slabs.free", r),
		staleFree: 	metrics.GetOrRegisterCounter("slabs.stale_free", r),
		grow: 		metrics.GetOrRegisterCounter("slabs.grow", r),
		marked: 	metrics.GetOrRegisterCounter("slabs.reclaim_marked", r),
		committed: 	metrics.GetOrRegisterCounter("slabs.reclaim_committed", r),
	}
}

func (m *allocMetrics) each(fn func(name string, cnt metrics.Counter)) {
	fn("alloc_ops", m.alloc)
	fn("alloc_failed", m.allocFailed)
	fn("free_ops", m.free)
	fn("stale_frees", m.staleFree)
	fn("pages_grown", m.grow)
	fn("reclaim_marked", m.marked)
	fn("reclaim_committed", m.committed)
}
