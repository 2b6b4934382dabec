package util_test

import (
	"slabcache/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Stack(t *testing.T) {
	s := util.CreateStack[int](0)
	assert.Equal(t, s.Len(), 0)

	_, ok := s.Pop()
	assert.False(t, ok)

	for range 3 {
		for i := range 5 {
			s.Push(i)
		}
		assert.Equal(t, s.Len(), 5)
		for i := range 5 {
			res, ok := s.Pop()
			assert.True(t, ok)
			assert.Equal(t, res, 4-i)
		}
		assert.Equal(t, s.Len(), 0)
	}
}

func Test_Stack_Grows_Never_Shrinks(t *testing.T) {
	s := util.CreateStack[int](4)
	assert.Equal(t, 4, s.Cap())

	for i := range 100 {
		s.Push(i)
		assert.LessOrEqual(t, s.Len(), s.Cap())
	}
	capAfter := s.Cap()
	assert.GreaterOrEqual(t, capAfter, 100)

	for range 100 {
		s.Pop()
	}
	assert.Equal(t, capAfter, s.Cap())
}

func Test_Stack_Retain(t *testing.T) {
	s := util.CreateStack[int](0)
	for i := range 10 {
		s.Push(i)
	}

	dropped := s.Retain(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 5, dropped)
	assert.Equal(t, 5, s.Len())

	var got []int
	s.Each(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{0, 2, 4, 6, 8}, got)

	top, ok := s.Pop()
	assert.True(t, ok)
	assert.Equal(t, 8, top)
}
