//go:build linux

// Platform abstracted memory ops
package system

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

const MMAP_MODE = unix.MAP_ANON  | unix.MAP_PRIVATE
const MMAP_PROT = unix.PROT_READ | unix.PROT_WRITE

// Slabs come straight from the kernel so they never show up in the go heap and are
// aligned to the system page size (basically always 0x1000). They are zeroed.
func AllocSlab(size int) ([]byte, error) {
	raw, err := unix.Mmap(-1, 0, size, MMAP_PROT, MMAP_MODE)
	if err != nil {
		slog.Error("AllocSlab", "size", size, "err", err)
	}
	return raw, err
}

func DeallocSlab(slab []byte) error {
	err := unix.Munmap(slab)
	if err != nil {
		slog.Error("DeallocSlab", "err", err)
	}
	return err
}
