package arena

import (
	"log/slog"
	"os"
	"testing"
	"time"

	c "slabcache/internal"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const TEST_PAGE = c.OS_PAGE

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
		AddSource:  true,
	})))
	os.Exit(m.Run())
}

func createArena(t *testing.T, limit uint64, prealloc bool) *Arena {
	a, err := Create(limit, TEST_PAGE, prealloc, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a
}

func Test_Arena_Grow_Until_Limit(t *testing.T) {
	a := createArena(t, TEST_PAGE*3, false)

	for i := range 3 {
		idx, err := a.Grow(false)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), idx)

		p := a.Page(idx)
		assert.Len(t, p.Data, TEST_PAGE)
		assert.Equal(t, uint32(1), p.Gen)
		assert.Equal(t, PageActive, p.State)
	}
	assert.Equal(t, uint64(TEST_PAGE*3), a.Malloced())
	assert.Zero(t, a.Headroom())

	_, err := a.Grow(false)
	assert.ErrorIs(t, err, ErrLimit)
	assert.Equal(t, uint64(TEST_PAGE*3), a.Malloced())
}

func Test_Arena_Unlimited(t *testing.T) {
	a := createArena(t, 0, false)
	for range 16 {
		_, err := a.Grow(false)
		require.NoError(t, err)
	}
	assert.Equal(t, 16, a.PageCount())
	assert.Greater(t, a.Headroom(), uint64(TEST_PAGE))
}

func Test_Arena_Limit_Not_Page_Multiple(t *testing.T) {
	a := createArena(t, TEST_PAGE+TEST_PAGE/2, false)
	_, err := a.Grow(false)
	require.NoError(t, err)
	_, err = a.Grow(false)
	assert.ErrorIs(t, err, ErrLimit)
}

func Test_Arena_Reserve(t *testing.T) {
	a := createArena(t, TEST_PAGE*2, false)

	require.NoError(t, a.Reserve(TEST_PAGE))
	assert.Equal(t, uint64(TEST_PAGE), a.Headroom())

	// can't reserve past the limit
	assert.ErrorIs(t, a.Reserve(TEST_PAGE*2), ErrLimit)

	_, err := a.Grow(false)
	require.NoError(t, err)

	// the only page left is reserved
	_, err = a.Grow(false)
	assert.ErrorIs(t, err, ErrLimit)

	_, err = a.Grow(true)
	require.NoError(t, err)
	assert.Zero(t, a.Reserved())
	assert.Equal(t, uint64(TEST_PAGE*2), a.Malloced())
}

func Test_Arena_Unreserve(t *testing.T) {
	a := createArena(t, TEST_PAGE, false)
	require.NoError(t, a.Reserve(TEST_PAGE))
	_, err := a.Grow(false)
	assert.ErrorIs(t, err, ErrLimit)

	a.Unreserve(TEST_PAGE)
	_, err = a.Grow(false)
	assert.NoError(t, err)
}

func Test_Arena_SetLimit(t *testing.T) {
	a := createArena(t, TEST_PAGE*4, false)
	for range 2 {
		_, err := a.Grow(false)
		require.NoError(t, err)
	}

	// below what we already have, nothing is given back but nothing grows either
	require.NoError(t, a.SetLimit(TEST_PAGE))
	assert.Equal(t, uint64(TEST_PAGE*2), a.Malloced())
	_, err := a.Grow(false)
	assert.ErrorIs(t, err, ErrLimit)

	require.NoError(t, a.SetLimit(0))
	_, err = a.Grow(false)
	assert.NoError(t, err)

	require.NoError(t, a.SetLimit(TEST_PAGE*8))
	require.NoError(t, a.Reserve(TEST_PAGE*2))
	assert.ErrorIs(t, a.SetLimit(TEST_PAGE), ErrBelowReserved)
}

func Test_Arena_Prealloc(t *testing.T) {
	a := createArena(t, TEST_PAGE*2, true)
	assert.True(t, a.Prealloc())
	assert.Zero(t, a.Malloced())

	i0, err := a.Grow(false)
	require.NoError(t, err)
	i1, err := a.Grow(false)
	require.NoError(t, err)

	// carved back to back out of the same buffer
	p0, p1 := a.Page(i0), a.Page(i1)
	assert.Same(t, &a.base[0], &p0.Data[0])
	assert.Same(t, &a.base[TEST_PAGE], &p1.Data[0])
	assert.Equal(t, TEST_PAGE, cap(p0.Data))

	_, err = a.Grow(false)
	assert.ErrorIs(t, err, ErrLimit)

	assert.ErrorIs(t, a.SetLimit(TEST_PAGE*3), ErrLimitTooLarge)
	assert.ErrorIs(t, a.SetLimit(0), ErrLimitTooLarge)
	assert.NoError(t, a.SetLimit(TEST_PAGE))
}

func Test_Arena_Prealloc_Needs_Limit(t *testing.T) {
	_, err := Create(0, TEST_PAGE, true, nil)
	assert.ErrorIs(t, err, ErrPreallocLimit)

	_, err = Create(TEST_PAGE, 0, false, nil)
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}

func Test_Arena_Closed(t *testing.T) {
	a, err := Create(0, TEST_PAGE, false, nil)
	require.NoError(t, err)
	_, err = a.Grow(false)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err = a.Grow(false)
	assert.ErrorIs(t, err, ErrClosed)
}

func Test_Arena_String(t *testing.T) {
	a := createArena(t, 0, false)
	idx, err := a.Grow(false)
	require.NoError(t, err)
	a.Page(idx).State = PageMarked
	a.Page(idx).Owner = 7

	s := a.String()
	assert.Contains(t, s, "Pages: 1")
	assert.Contains(t, s, "> [0000] Owner:   7 | State: marked")
}
