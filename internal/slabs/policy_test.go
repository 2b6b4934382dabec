package slabs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func infos() []ClassInfo {
	return []ClassInfo{
		{ID: 1, PerSlab: 10, Pages: 2, FreeChunks: 5},  // 0.25
		{ID: 2, PerSlab: 4, Pages: 1, FreeChunks: 3},   // 0.75
		{ID: 3, PerSlab: 2, Pages: 0},
		{ID: 4, PerSlab: 2, Pages: 3, FreeChunks: 6, Reclaiming: true},
		{ID: 5, PerSlab: 1, Pages: 4, FreeChunks: 0},
	}
}

func Test_ClassInfo_Ratio(t *testing.T) {
	ci := ClassInfo{PerSlab: 10, Pages: 2, FreeChunks: 5}
	assert.Equal(t, 20, ci.TotalChunks())
	assert.InDelta(t, 0.25, ci.FreeRatio(), 1e-9)
	assert.Zero(t, ClassInfo{PerSlab: 10}.FreeRatio())
}

func Test_Eligible(t *testing.T) {
	cis := infos()
	assert.True(t, Eligible(9, cis[0], 0))
	assert.False(t, Eligible(1, cis[0], 0), "recipient can't donate to itself")
	assert.False(t, Eligible(9, cis[0], 3), "not enough pages")
	assert.False(t, Eligible(9, cis[2], 0), "no pages at all")
	assert.False(t, Eligible(9, cis[3], 0), "already reclaiming")
}

func Test_MostFreePolicy(t *testing.T) {
	p := MostFreePolicy{}

	id, ok := p.SelectDonor(9, infos())
	assert.True(t, ok)
	assert.Equal(t, ClassID(2), id)

	id, ok = p.SelectDonor(2, infos())
	assert.True(t, ok)
	assert.Equal(t, ClassID(1), id)

	_, ok = MostFreePolicy{MinFreeRatio: 0.8}.SelectDonor(9, infos())
	assert.False(t, ok)

	id, ok = MostFreePolicy{MinPages: 2}.SelectDonor(9, infos())
	assert.True(t, ok)
	assert.Equal(t, ClassID(1), id)

	// nothing free anywhere
	_, ok = p.SelectDonor(9, []ClassInfo{{ID: 5, PerSlab: 1, Pages: 4}})
	assert.False(t, ok)
}

func Test_HashedPolicy(t *testing.T) {
	p := &HashedPolicy{Seed: 7}
	seen := map[ClassID]int{}
	for range 200 {
		id, ok := p.SelectDonor(9, infos())
		assert.True(t, ok)
		seen[id]++
	}
	// only 1 and 2 have free chunks and are eligible
	assert.Len(t, seen, 2)
	assert.Greater(t, seen[1], 0)
	assert.Greater(t, seen[2], 0)

	_, ok := p.SelectDonor(9, infos()[2:])
	assert.False(t, ok)
}

func Test_NeverReclaim(t *testing.T) {
	_, ok := NeverReclaim.SelectDonor(1, infos())
	assert.False(t, ok)
}
