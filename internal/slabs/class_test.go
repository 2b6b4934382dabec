package slabs

import (
	"testing"

	c "slabcache/internal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Classes_Strictly_Increasing(t *testing.T) {
	for _, factor := range []float64{1.01, 1.08, 1.25, 2, 4} {
		classes := buildClasses(c.SLAB_PAGE_SIZE, c.CHUNK_SIZE_MIN, factor)
		require.Greater(t, len(classes), 1)
		assert.LessOrEqual(t, len(classes)-1, c.MAX_SLAB_CLASSES, "factor %v", factor)

		for i := 1; i < len(classes); i++ {
			sc := classes[i]
			assert.Equal(t, ClassID(i), sc.id)
			assert.Zero(t, sc.size%c.CHUNK_ALIGN, "class %d unaligned", i)
			assert.Equal(t, c.SLAB_PAGE_SIZE/sc.size, sc.perSlab)
			if i > 1 {
				assert.Greater(t, sc.size, classes[i-1].size, "factor %v class %d", factor, i)
			}
			if i < len(classes)-1 {
				assert.GreaterOrEqual(t, sc.perSlab, c.MIN_ITEMS_PER_SLAB)
			}
		}

		last := classes[len(classes)-1]
		assert.Equal(t, c.SLAB_PAGE_SIZE, last.size)
		assert.Equal(t, 1, last.perSlab)
	}
}

func Test_Classes_Factor_Sizes(t *testing.T) {
	classes := buildClasses(c.SLAB_PAGE_SIZE, c.CHUNK_SIZE_MIN, 1.25)
	var sizes []int
	for _, sc := range classes[1:6] {
		sizes = append(sizes, sc.size)
	}
	assert.Equal(t, []int{48, 64, 80, 104, 136}, sizes)
}

func Test_Classes_Min_Over_Half_Page(t *testing.T) {
	classes := buildClasses(TEST_PAGE, TEST_PAGE-8, 1.25)
	require.Len(t, classes, 2)
	assert.Equal(t, TEST_PAGE, classes[1].size)
}

func Test_ClassForSize_Smallest_Fit(t *testing.T) {
	s := createSlabs(t, Options{})
	largest := s.Largest()

	sizes := []int{1, 47, 48, 49, 100, 1000, 4095, 4096, 65536, 500_000, c.SLAB_PAGE_SIZE - 1, c.SLAB_PAGE_SIZE}
	for sz := 1; sz < 20_000; sz += 7 {
		sizes = append(sizes, sz)
	}

	for _, size := range sizes {
		id := s.ClassForSize(size)
		require.NotEqual(t, NoClass, id, "size %d", size)
		require.LessOrEqual(t, id, largest)
		assert.GreaterOrEqual(t, s.ChunkSize(id), size)
		if id > 1 {
			assert.Less(t, s.ChunkSize(id-1), size, "size %d not in the smallest class", size)
		}
		assert.Equal(t, s.ChunkSize(id), s.SpaceForSize(size))
	}
}

func Test_ClassForSize_Oversized(t *testing.T) {
	s := createSlabs(t, Options{})

	assert.Equal(t, NoClass, s.ClassForSize(c.SLAB_PAGE_SIZE+1))
	assert.Equal(t, NoClass, s.ClassForSize(1<<30))
	assert.Equal(t, NoClass, s.ClassForSize(0))
	assert.Equal(t, NoClass, s.ClassForSize(-5))
	assert.Zero(t, s.SpaceForSize(c.SLAB_PAGE_SIZE+1))
	assert.Zero(t, s.ChunkSize(NoClass))
}

func Test_Chunk_Zero(t *testing.T) {
	var ch Chunk
	assert.True(t, ch.IsZero())
	assert.Equal(t, "0.0@0", ch.String())
	assert.False(t, Chunk{gen: 1}.IsZero())
}
