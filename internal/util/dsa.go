package util

import (
	"github.com/negrel/assert"
)

const STACK_MIN_CAP = 16

// LIFO stack backed by a slice we grow ourselves. Capacity doubles when full and never
// shrinks, so a stack that once held N items can hold N items again without allocating.
type Stack[T any] struct {
	data	[]T
	cnt 	int
}

func CreateStack[T any](size int) Stack[T] {
	return Stack[T] {
		data: 	make([]T, max(size, 0)),
		cnt: 	0,
	}
}

func (s *Stack[T]) Len() int {
	return s.cnt
}

func (s *Stack[T]) Cap() int {
	return len(s.data)
}

func (s *Stack[T]) Push(val T) {
	if s.cnt == len(s.data) {
		grown := make([]T, max(len(s.data) * 2, STACK_MIN_CAP))
		copy(grown, s.data)
		s.data = grown
	}
	s.data[s.cnt] = val
	s.cnt++
	assert.LessOrEqual(s.cnt, len(s.data), "stack over capacity")
}

// Most recently pushed value first.
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if s.cnt == 0 { return zero, false }
	s.cnt--
	val := s.data[s.cnt]
	s.data[s.cnt] = zero
	return val, true
}

// Retain keeps only values for which keep returns true, preserving their order.
// Returns how many were dropped.
func (s *Stack[T]) Retain(keep func(T) bool) int {
	var zero T
	n := 0
	for i := range s.cnt {
		if keep(s.data[i]) {
			s.data[n] = s.data[i]
			n++
		}
	}
	for i := n; i < s.cnt; i++ {
		s.data[i] = zero
	}
	dropped := s.cnt - n
	s.cnt = n
	return dropped
}

// Calls fn for every value, bottom to top.
func (s *Stack[T]) Each(fn func(T)) {
	for i := range s.cnt {
		fn(s.data[i])
	}
}
