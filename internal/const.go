// Constants
package internal

import (
	"encoding/binary"
)

const OS_PAGE		= 0x1000
const SLAB_PAGE_SIZE	= 0x100000 // 1MiB, also the largest storable item

// every chunk size is rounded up to this
const CHUNK_ALIGN	= 0x08
// smallest chunk handed out: item header plus a few bytes of key/value
const CHUNK_SIZE_MIN	= 0x30

// class 0 is reserved for "nothing fits", so ids are 1..MAX_SLAB_CLASSES
const MAX_SLAB_CLASSES	= 200
// classes stop growing once a page would hold fewer chunks than this
const MIN_ITEMS_PER_SLAB	= 2

const DEFAULT_FACTOR	= 1.25

func AlignUp(n int, align int) int {
	if rem := n % align; rem != 0 {
		return n + align - rem
	}
	return n
}

// This is an alias for endianness effectively, so we only define endianness in one place (here).
// Item headers never leave the process so we just use the fast one.
var Bin = binary.LittleEndian
