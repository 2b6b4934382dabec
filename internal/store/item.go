package store

import (
	c "slabcache/internal"

	"github.com/cespare/xxhash"
	"github.com/negrel/assert"
)

// Item layout inside a chunk. Whatever is past the value is garbage.
const (
	offChecksum	= 0x00 // 8B, xxhash of everything after it up to the end of the value
	offFlags	= 0x08 // 4B
	offKeyLen	= 0x0c // 2B
	offValLen	= 0x0e // 4B
	ITEM_HEADER	= 0x12
)

const MAX_KEY_LEN = 250

type item struct {
	raw []byte
}

func itemSize(keyLen int, valLen int) int {
	return ITEM_HEADER + keyLen + valLen
}

func writeItem(raw []byte, key []byte, val []byte, flags uint32) item {
	assert.LessOrEqual(itemSize(len(key), len(val)), len(raw), "item doesn't fit the chunk")
	it := item{raw: raw}
	c.Bin.PutUint32(it.raw[offFlags:], flags)
	c.Bin.PutUint16(it.raw[offKeyLen:], uint16(len(key)))
	c.Bin.PutUint32(it.raw[offValLen:], uint32(len(val)))
	copy(it.raw[ITEM_HEADER:], key)
	copy(it.raw[ITEM_HEADER+len(key):], val)
	it.DoChecksum()
	return it
}

func (it item) Checksum() uint64 	{ return c.Bin.Uint64(it.raw[offChecksum:]) }
func (it item) Flags() uint32 		{ return c.Bin.Uint32(it.raw[offFlags:]) }
func (it item) keyLen() int 		{ return int(c.Bin.Uint16(it.raw[offKeyLen:])) }
func (it item) valLen() int 		{ return int(c.Bin.Uint32(it.raw[offValLen:])) }

func (it item) setChecksum(sum uint64) 	{ c.Bin.PutUint64(it.raw[offChecksum:], sum) }

// Only valid after Verify.
func (it item) Key() []byte {
	return it.raw[ITEM_HEADER : ITEM_HEADER+it.keyLen()]
}

func (it item) Value() []byte {
	start := ITEM_HEADER + it.keyLen()
	return it.raw[start : start+it.valLen()]
}

func (it item) end() int {
	return ITEM_HEADER + it.keyLen() + it.valLen()
}

func (it item) DoChecksum() {
	it.setChecksum(xxhash.Sum64(it.raw[offFlags:it.end()]))
}

// Verify checks the lengths fit the chunk and the checksum matches.
func (it item) Verify() bool {
	if len(it.raw) < ITEM_HEADER { return false }
	if it.end() > len(it.raw) { return false }
	return xxhash.Sum64(it.raw[offFlags:it.end()]) == it.Checksum()
}
